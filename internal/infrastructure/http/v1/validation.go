package v1

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"sompos/internal/domain/movement"
	"sompos/internal/domain/settlement"
)

var registerOnce sync.Once

// RegisterValidators adds the domain tags to gin's validator. Safe to call
// more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
			return
		}
		v.RegisterTagNameFunc(wireName)
		if err = v.RegisterValidation("payment_method", validPaymentMethod); err != nil {
			return
		}
		err = v.RegisterValidation("operation_type", validOperationType)
	})
	return err
}

func validPaymentMethod(fl validator.FieldLevel) bool {
	return settlement.PaymentMethod(fl.Field().String()).Valid()
}

func validOperationType(fl validator.FieldLevel) bool {
	return movement.OperationType(fl.Field().String()).Valid()
}

// wireName reports fields by the name the client sent: the json key for
// bodies, the form key for query strings.
func wireName(f reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}
