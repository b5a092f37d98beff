package receiving

import (
	"strings"

	"coffee-backend/internal/database"
	"coffee-backend/internal/lotnumber"
	"coffee-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreateFarmerRequest struct {
	Name     string `json:"name"`
	Producer string `json:"producer"`
	Village  string `json:"village"`
}

type ReferenceMappingRequest struct {
	ProductLine     string `json:"productLine"`
	ProcessingType  string `json:"processingType"`
	Producer        string `json:"producer"`
	Type            string `json:"type"`
	ReferenceNumber string `json:"referenceNumber"`
}

// POST /api/farmers
func CreateFarmerHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body CreateFarmerRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		body.Name = strings.TrimSpace(body.Name)
		if body.Name == "" {
			return fiber.NewError(fiber.StatusBadRequest, "name is required")
		}
		producer, ok := models.ParseProducer(body.Producer)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "unknown producer")
		}

		farmer := models.Farmer{Name: body.Name, Producer: producer, Village: strings.TrimSpace(body.Village)}
		if err := database.DB.Create(&farmer).Error; err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(farmer)
	}
}

// GET /api/farmers?producer=HQ
func ListFarmersHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		q := database.DB.Order("name")
		if p := c.Query("producer"); p != "" {
			producer, ok := models.ParseProducer(p)
			if !ok {
				return fiber.NewError(fiber.StatusBadRequest, "unknown producer")
			}
			q = q.Where("producer = ?", producer)
		}
		var farmers []models.Farmer
		if err := q.Find(&farmers).Error; err != nil {
			return err
		}
		return c.JSON(farmers)
	}
}

// POST /api/reference-mappings
func UpsertReferenceMappingHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body ReferenceMappingRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		m, err := body.toModel()
		if err != nil {
			return err
		}
		if err := UpsertReferenceMappings(database.DB, []models.ReferenceMapping{m}); err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(m)
	}
}

// GET /api/reference-mappings
func ListReferenceMappingsHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var out []models.ReferenceMapping
		if err := database.DB.Order("producer, product_line, processing_type, type").Find(&out).Error; err != nil {
			return err
		}
		return c.JSON(out)
	}
}

func (r ReferenceMappingRequest) toModel() (models.ReferenceMapping, error) {
	if _, err := lotnumber.ProductLineAbbrev(r.ProductLine); err != nil {
		return models.ReferenceMapping{}, err
	}
	if _, err := lotnumber.ProcessingAbbrev(r.ProcessingType); err != nil {
		return models.ReferenceMapping{}, err
	}
	producer, ok := models.ParseProducer(r.Producer)
	if !ok {
		return models.ReferenceMapping{}, fiber.NewError(fiber.StatusBadRequest, "unknown producer "+r.Producer)
	}
	coffeeType, ok := models.ParseCoffeeType(r.Type)
	if !ok {
		return models.ReferenceMapping{}, fiber.NewError(fiber.StatusBadRequest, "unknown coffee type "+r.Type)
	}
	ref := strings.TrimSpace(r.ReferenceNumber)
	if ref == "" {
		return models.ReferenceMapping{}, fiber.NewError(fiber.StatusBadRequest, "referenceNumber is required")
	}
	return models.ReferenceMapping{
		ProductLine:     strings.TrimSpace(r.ProductLine),
		ProcessingType:  strings.TrimSpace(r.ProcessingType),
		Producer:        producer,
		Type:            coffeeType,
		ReferenceNumber: ref,
	}, nil
}

// UpsertReferenceMappings inserts mappings in one statement, replacing
// the reference number of keys that already exist.
func UpsertReferenceMappings(tx *gorm.DB, mappings []models.ReferenceMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "product_line"}, {Name: "processing_type"}, {Name: "producer"}, {Name: "type"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"reference_number"}),
	}).Create(&mappings).Error
}
