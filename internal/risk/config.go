package risk

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"signal-bridge/internal/indicator"
	"signal-bridge/internal/model"
)

// Config holds the gate thresholds. All fields are required.
type Config struct {
	MinATRMultiple float64 `json:"min_atr_multiple" validate:"gt=0,ltfield=MaxATRMultiple"`
	MaxATRMultiple float64 `json:"max_atr_multiple" validate:"gt=0"`
	MinRR          float64 `json:"min_rr" validate:"gte=1"`
	ATRPeriod      int     `json:"atr_period" validate:"gte=1"`
	MaxCapitalPct  float64 `json:"max_capital_pct" validate:"gt=0,lt=1"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		MinATRMultiple: 0.5,
		MaxATRMultiple: 5.0,
		MinRR:          1.5,
		ATRPeriod:      indicator.DefaultATRPeriod,
		MaxCapitalPct:  0.05,
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks 0 < min < max, min_rr >= 1, atr_period >= 1 and
// 0 < max_capital_pct < 1.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := fmt.Sprintf("%v fails %s", fe.Value(), fe.Tag())
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &model.ValidationError{Field: "risk." + fe.Field(), Reason: reason}
	}
	return err
}
