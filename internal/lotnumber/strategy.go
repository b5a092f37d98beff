// Package lotnumber builds the externally facing lot numbers. Each
// producer has its own numbering strategy.
package lotnumber

import (
	"fmt"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"
	"coffee-backend/internal/sequence"

	"gorm.io/gorm"
)

type Input struct {
	Producer       models.Producer
	ProductLine    string
	ProcessingType string
	Type           models.CoffeeType
	Year           int

	// Grade is the sub-batch quality; empty for preprocessing lots.
	Grade string

	// Sequence, when non-zero, is used instead of allocating one.
	Sequence int
}

// Sequencer is the part of the allocator the strategies need.
type Sequencer interface {
	LotSequence(tx *gorm.DB, key sequence.LotKey) (int, error)
}

type Strategy interface {
	LotNumber(tx *gorm.DB, in Input) (string, error)
}

// HQStrategy: {ProducerAbbrev}{YY}{ProductLineAbbrev}-{ProcessingAbbrev}-{NNNN}[-{Grade}]
type HQStrategy struct {
	Seq Sequencer
}

func (s HQStrategy) LotNumber(tx *gorm.DB, in Input) (string, error) {
	pl, err := ProductLineAbbrev(in.ProductLine)
	if err != nil {
		return "", err
	}
	proc, err := ProcessingAbbrev(in.ProcessingType)
	if err != nil {
		return "", err
	}
	suffix, err := gradeSuffix(in.Grade)
	if err != nil {
		return "", err
	}

	seq := in.Sequence
	if seq == 0 {
		key, err := SequenceKey(in)
		if err != nil {
			return "", err
		}
		if seq, err = s.Seq.LotSequence(tx, key); err != nil {
			return "", err
		}
	}

	return fmt.Sprintf("%s%s%s-%s-%04d%s", producerAbbrev[models.ProducerHQ], yy(in.Year), pl, proc, seq, suffix), nil
}

// SequenceKey builds the counter key for in. Product line and processing
// type are stored as their abbreviations, so spellings that print the
// same lot prefix share one counter.
func SequenceKey(in Input) (sequence.LotKey, error) {
	pl, err := ProductLineAbbrev(in.ProductLine)
	if err != nil {
		return sequence.LotKey{}, err
	}
	proc, err := ProcessingAbbrev(in.ProcessingType)
	if err != nil {
		return sequence.LotKey{}, err
	}
	grade := ""
	if in.Grade != "" {
		if grade, _, err = ParseGrade(in.Grade); err != nil {
			return sequence.LotKey{}, err
		}
	}
	return sequence.LotKey{
		Producer:       in.Producer,
		ProductLine:    pl,
		ProcessingType: proc,
		Year:           in.Year,
		Grade:          grade,
	}, nil
}

// BTMStrategy: ID-BTM-{TypeAbbrev}-{ProcessingAbbrev}[-{Grade}], no sequence.
type BTMStrategy struct{}

func (BTMStrategy) LotNumber(_ *gorm.DB, in Input) (string, error) {
	t, err := TypeAbbrev(in.Type)
	if err != nil {
		return "", err
	}
	proc, err := ProcessingAbbrev(in.ProcessingType)
	if err != nil {
		return "", err
	}
	suffix, err := gradeSuffix(in.Grade)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ID-%s-%s-%s%s", producerAbbrev[models.ProducerBTM], t, proc, suffix), nil
}

type Registry struct {
	strategies map[models.Producer]Strategy
}

func NewRegistry(seq Sequencer) *Registry {
	return &Registry{strategies: map[models.Producer]Strategy{
		models.ProducerHQ:  HQStrategy{Seq: seq},
		models.ProducerBTM: BTMStrategy{},
	}}
}

func (r *Registry) For(p models.Producer) (Strategy, error) {
	s, ok := r.strategies[p]
	if !ok {
		return nil, apperr.Validation("unknown_producer", "no lot numbering for producer %q", p)
	}
	return s, nil
}

// LotNumber dispatches on in.Producer.
func (r *Registry) LotNumber(tx *gorm.DB, in Input) (string, error) {
	s, err := r.For(in.Producer)
	if err != nil {
		return "", err
	}
	return s.LotNumber(tx, in)
}
