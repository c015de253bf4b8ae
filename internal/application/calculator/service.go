// Package calculator implements the example tool endpoint: a two-operand
// calculation with a deliberately lenient operation policy.
package calculator

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// OperationAdd is the only operation implemented.
const OperationAdd = "add"

// ErrUnsupportedOperation is returned in strict mode for any operation other
// than addition.
var ErrUnsupportedOperation = errors.New("unsupported operation")

// Input is the request body of the calculator tool.
type Input struct {
	Num1      *float64 `json:"num1" validate:"required"`
	Num2      *float64 `json:"num2" validate:"required"`
	Operation string   `json:"operation"`
}

// Output is the response body of the calculator tool.
type Output struct {
	Result  float64 `json:"result"`
	Message string  `json:"message"`
}

// ValidationError lists the fields that failed validation with readable
// messages keyed by JSON field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid calculator input: %d field(s) failed validation", len(e.Fields))
}

// Service performs calculations.
type Service struct {
	validate *validator.Validate
	trans    ut.Translator
	strict   bool
	tracer   trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

// WithStrictOperations rejects unsupported operations instead of falling
// back to addition.
func WithStrictOperations(strict bool) Option { return func(s *Service) { s.strict = strict } }

// NewService creates a calculator service.
func NewService(tracer trace.Tracer, opts ...Option) (*Service, error) {
	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")

	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(jsonFieldName)
	if err := en_translations.RegisterDefaultTranslations(v, trans); err != nil {
		return nil, fmt.Errorf("registering validator translations: %w", err)
	}

	s := &Service{validate: v, trans: trans, tracer: tracer}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Calculate validates in and computes the result. Unsupported operations
// fall back to addition with an explanatory message unless the service is
// strict.
func (s *Service) Calculate(ctx context.Context, in Input) (Output, error) {
	_, span := s.tracer.Start(ctx, "calculator.calculate")
	defer span.End()

	if err := s.validate.StructCtx(ctx, in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Translate(s.trans)
			}
			return Output{}, &ValidationError{Fields: fields}
		}
		return Output{}, fmt.Errorf("validating input: %w", err)
	}

	op := in.Operation
	if op == "" {
		op = OperationAdd
	}
	a, b := *in.Num1, *in.Num2
	span.SetAttributes(attribute.String("operation", op))

	if op == OperationAdd {
		return Output{
			Result:  a + b,
			Message: fmt.Sprintf("Successfully calculated the sum of %s and %s.", formatNumber(a), formatNumber(b)),
		}, nil
	}

	if s.strict {
		return Output{}, fmt.Errorf("%w: %q", ErrUnsupportedOperation, op)
	}

	return Output{
		Result:  a + b,
		Message: fmt.Sprintf("Operation '%s' not supported yet. Defaulting to addition.", op),
	}, nil
}

func formatNumber(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

// jsonFieldName reports validation failures under the JSON name clients send.
func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	switch name {
	case "-":
		return ""
	case "":
		return fld.Name
	default:
		return name
	}
}
