package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"queuesync/internal/apperr"
)

var validate = validator.New()

// ValidateStruct revisa los tags validate de un DTO de entrada y devuelve
// un error de tipo validation con el primer campo rechazado.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.New(apperr.KindValidation, "queue.validate", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return apperr.Newf(apperr.KindValidation, "queue.validate", "%s", strings.Join(msgs, "; "))
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		return fmt.Sprintf("%s must be >= %s, got %v", fe.Field(), fe.Param(), fe.Value())
	case "ltefield":
		return fmt.Sprintf("%s %vs exceeds %s", fe.Field(), fe.Value(), fe.Param())
	}
	return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
}
