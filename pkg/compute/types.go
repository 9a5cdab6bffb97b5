package compute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrMissingBaseURL = errors.New("compute service base URL is required")
	ErrEmptyResponse  = errors.New("compute service returned an empty payload")
)

// ServiceError is returned when a compute service responds with a
// non-2xx status or an explicit failure envelope. The upstream status
// lets callers classify the failure as retryable or not.
type ServiceError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("compute service %s failed with status %d: %s", e.Service, e.StatusCode, e.Message)
}

// Retryable reports whether the failure is worth retrying: server-side
// errors and timeouts are, caller errors are not.
func (e *ServiceError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// NatalParams carries the birth data every computation starts from.
type NatalParams struct {
	Name      string `json:"nombre"`
	BirthDate string `json:"fecha_nacimiento"` // YYYY-MM-DD
	BirthTime string `json:"hora_nacimiento"`  // HH:MM, "12:00" when unknown
	City      string `json:"ciudad_nacimiento"`
	Country   string `json:"pais_nacimiento"`
	Gender    string `json:"genero,omitempty"`
}

// ChartRequest asks for a full natal chart of the given variant.
type ChartRequest struct {
	NatalParams
	Variant string `json:"-"` // tropical, draconic, crossed; selects the endpoint
}

// InterpretationRequest asks for a narrative interpretation of a chart
// variant.
type InterpretationRequest struct {
	NatalParams
	Variant string `json:"variante"`
}

// CalendarRequest asks for one year of the personal calendar.
type CalendarRequest struct {
	NatalParams
	Year int `json:"anio"`
}

// Result is the computed artifact plus the generation-time metric the
// services report.
type Result struct {
	Payload     json.RawMessage
	Reduced     json.RawMessage // trimmed variant for list views, charts only
	GeneratedIn time.Duration
}

// ChartService computes full natal charts.
type ChartService interface {
	Chart(ctx context.Context, req ChartRequest) (*Result, error)
}

// InterpretationService computes narrative interpretations.
type InterpretationService interface {
	Interpretation(ctx context.Context, req InterpretationRequest) (*Result, error)
}

// CalendarService computes year-partitioned personal calendars.
type CalendarService interface {
	Calendar(ctx context.Context, req CalendarRequest) (*Result, error)
}
