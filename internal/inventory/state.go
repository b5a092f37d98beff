// Package inventory moves cherry batches through the physical stages
// (QC, wet mill, drying, dry mill) and green-bean sub-batches into the
// warehouse.
//
// A batch's state is never stored; it is derived from the stage event
// tables, so a rolled back transition leaves no trace.
package inventory

import (
	"errors"
	"fmt"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"

	"gorm.io/gorm"
)

type State string

const (
	StateReceived       State = "Received"
	StateQCPending      State = "QCPending"
	StateQCDone         State = "QCDone"
	StateWetMillEntered State = "WetMillEntered"
	StateWetMillExited  State = "WetMillExited"
	StateDryingEntered  State = "DryingEntered"
	StateDryingExited   State = "DryingExited"
	StateDryMillEntered State = "DryMillEntered"
	StateGraded         State = "Graded"
	StateStored         State = "Stored"
)

var rank = map[State]int{
	StateReceived:       0,
	StateQCPending:      1,
	StateQCDone:         2,
	StateWetMillEntered: 3,
	StateWetMillExited:  4,
	StateDryingEntered:  5,
	StateDryingExited:   6,
	StateDryMillEntered: 7,
	StateGraded:         8,
	StateStored:         9,
}

// transitions lists the states reachable from each state in one step.
var transitions = map[State][]State{
	StateReceived:       {StateQCPending, StateQCDone},
	StateQCPending:      {StateQCDone},
	StateQCDone:         {StateWetMillEntered},
	StateWetMillEntered: {StateWetMillExited},
	StateWetMillExited:  {StateDryingEntered},
	StateDryingEntered:  {StateDryingExited},
	StateDryingExited:   {StateDryMillEntered},
	StateDryMillEntered: {StateGraded},
	StateGraded:         {StateStored},
}

func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// checkTransition rejects a move to a state already reached as a
// conflict and a move that skips a stage as a validation error.
func checkTransition(batchNumber string, from, to State) error {
	if CanTransition(from, to) {
		return nil
	}
	if rank[to] <= rank[from] {
		return apperr.Conflict("stage_already_recorded", "batch %s is already %s", batchNumber, from).
			WithDetails("requested %s", to)
	}
	return apperr.Validation("stage_out_of_order", "batch %s cannot move from %s to %s", batchNumber, from, to)
}

// StateOf derives the current state of a cherry batch.
func StateOf(tx *gorm.DB, batchNumber string) (State, error) {
	var n int64
	if err := tx.Model(&models.Batch{}).Where("batch_number = ?", batchNumber).Count(&n).Error; err != nil {
		return "", fmt.Errorf("load batch: %w", err)
	}
	if n == 0 {
		return "", apperr.NotFound("batch_not_found", "batch %s not found", batchNumber)
	}

	var dm models.DryMillEvent
	found, err := stageEvent(tx, &dm, batchNumber)
	if err != nil {
		return "", err
	}
	if found {
		if dm.ExitedAt == nil {
			return StateDryMillEntered, nil
		}
		stored, err := allStored(tx, batchNumber)
		if err != nil {
			return "", err
		}
		if stored {
			return StateStored, nil
		}
		return StateGraded, nil
	}

	var dr models.DryingEvent
	if found, err = stageEvent(tx, &dr, batchNumber); err != nil {
		return "", err
	} else if found {
		if dr.ExitedAt != nil {
			return StateDryingExited, nil
		}
		return StateDryingEntered, nil
	}

	var wm models.WetMillEvent
	if found, err = stageEvent(tx, &wm, batchNumber); err != nil {
		return "", err
	} else if found {
		if wm.ExitedAt != nil {
			return StateWetMillExited, nil
		}
		return StateWetMillEntered, nil
	}

	var qc models.QCRecord
	err = tx.Where("batch_number = ?", batchNumber).Take(&qc).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return StateReceived, nil
	case err != nil:
		return "", fmt.Errorf("load qc record: %w", err)
	case qc.Status == models.QCDone:
		return StateQCDone, nil
	}
	return StateQCPending, nil
}

func stageEvent(tx *gorm.DB, dest any, batchNumber string) (bool, error) {
	err := tx.Where("batch_number = ?", batchNumber).Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load stage event: %w", err)
	}
	return true, nil
}

func allStored(tx *gorm.DB, batchNumber string) (bool, error) {
	var total, stored int64
	q := tx.Model(&models.SubBatch{}).Where("parent_batch_number = ?", batchNumber)
	if err := q.Count(&total).Error; err != nil {
		return false, fmt.Errorf("count sub-batches: %w", err)
	}
	if err := tx.Model(&models.SubBatch{}).
		Where("parent_batch_number = ? AND is_stored = ?", batchNumber, true).
		Count(&stored).Error; err != nil {
		return false, fmt.Errorf("count stored sub-batches: %w", err)
	}
	return total > 0 && stored == total, nil
}
