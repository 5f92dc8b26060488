package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const maxRequestBody = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// UpdateAutomationConfigRequest is the body of PUT /automation/config.
// Booleans are pointers so an omitted field fails validation instead of
// silently becoming false.
type UpdateAutomationConfigRequest struct {
	IsEnabled            *bool `json:"is_enabled" validate:"required"`
	RenewalAdvanceTime   int   `json:"renewal_advance_time" validate:"min=1"`
	RenewalPeriodMinutes int   `json:"renewal_period_minutes" validate:"gtfield=RenewalAdvanceTime"`
	DefaultAutoRenewal   *bool `json:"default_auto_renewal" validate:"required"`
}

// AccountRenewalRequest is the body of PUT /accounts/{id}/renewal.
type AccountRenewalRequest struct {
	AutoRenewalEnabled    *bool `json:"auto_renewal_enabled" validate:"required"`
	RenewalAdvanceMinutes *int  `json:"renewal_advance_minutes" validate:"omitempty,min=1"`
}

// AccountNoteRequest is the body of PUT /accounts/{id}/note. An empty note
// clears it; an omitted one is rejected.
type AccountNoteRequest struct {
	Note *string `json:"note" validate:"required,max=4000"`
}

// PanelCredentialsRequest is the body of PUT /panel/credentials.
type PanelCredentialsRequest struct {
	BaseURL string `json:"base_url" validate:"required,url"`
	Token   string `json:"token" validate:"required"`
}

// decodeAndValidate reads a JSON body into dst and validates it. On failure it
// writes a 400 response and returns false.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  "validation failed",
			Fields: validationFields(err),
		})
		return false
	}

	return true
}

// validationFields maps each failing field's JSON name to the rule it broke.
func validationFields(err error) map[string]string {
	fields := make(map[string]string)

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fields["_"] = err.Error()
		return fields
	}

	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[fe.Field()] = rule
	}

	return fields
}
