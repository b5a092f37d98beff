package lotnumber

import (
	"fmt"
	"strings"

	"coffee-backend/internal/apperr"
	"coffee-backend/internal/models"
)

var productLineAbbrev = map[string]string{
	"regional lot":    "RL",
	"micro lot":       "ML",
	"competition lot": "CL",
	"commercial lot":  "CO",
}

var processingAbbrev = map[string]string{
	"natural":                     "N",
	"washed":                      "W",
	"honey":                       "H",
	"pulped natural":              "PN",
	"semi-washed":                 "SW",
	"anaerobic natural":           "AN",
	"anaerobic washed":            "AW",
	"anaerobic honey":             "AH",
	"carbonic maceration natural": "CMN",
	"carbonic maceration washed":  "CMW",
	"wine":                        "WN",
	"reject":                      "RJ",
}

var producerAbbrev = map[models.Producer]string{
	models.ProducerHQ:  "HQ",
	models.ProducerBTM: "BTM",
}

var typeAbbrev = map[models.CoffeeType]string{
	models.CoffeeArabica: "A",
	models.CoffeeRobusta: "R",
}

func ProductLineAbbrev(productLine string) (string, error) {
	if a, ok := productLineAbbrev[normalize(productLine)]; ok {
		return a, nil
	}
	return "", apperr.Validation("unknown_product_line", "unknown product line %q", productLine)
}

func ProcessingAbbrev(processingType string) (string, error) {
	if a, ok := processingAbbrev[normalize(processingType)]; ok {
		return a, nil
	}
	return "", apperr.Validation("unknown_processing_type", "unknown processing type %q", processingType)
}

func TypeAbbrev(t models.CoffeeType) (string, error) {
	if a, ok := typeAbbrev[t]; ok {
		return a, nil
	}
	return "", apperr.Validation("unknown_coffee_type", "unknown coffee type %q", t)
}

// ParseGrade accepts "Specialty", "Grade 1".."Grade 4" and their short
// forms, and returns the canonical quality name and its abbreviation.
func ParseGrade(quality string) (name, abbrev string, err error) {
	q := normalize(quality)
	switch q {
	case "specialty", "s":
		return "Specialty", "S", nil
	}
	q = strings.TrimPrefix(q, "grade")
	q = strings.TrimPrefix(strings.TrimSpace(q), "g")
	switch q {
	case "1", "2", "3", "4":
		return "Grade " + q, "G" + q, nil
	}
	return "", "", apperr.Validation("unknown_grade", "unknown grade %q", quality)
}

func gradeSuffix(quality string) (string, error) {
	if quality == "" {
		return "", nil
	}
	_, abbrev, err := ParseGrade(quality)
	if err != nil {
		return "", err
	}
	return "-" + abbrev, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func yy(year int) string {
	return fmt.Sprintf("%02d", year%100)
}
