// Package validation porte les règles de formulaire partagées par les
// handlers (binding gin) et les services.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	phoneRe   = regexp.MustCompile(`^\+?[0-9]{10,15}$`)
	pincodeRe = regexp.MustCompile(`^[A-Za-z0-9]{4,10}$`)

	once     sync.Once
	validate *validator.Validate

	// now est remplaçable dans les tests.
	now = time.Now
)

// Register ajoute les règles custom à un validator existant.
func Register(v *validator.Validate) error {
	if err := v.RegisterValidation("phone", isPhone); err != nil {
		return err
	}
	if err := v.RegisterValidation("pincode", isPincode); err != nil {
		return err
	}
	return v.RegisterValidation("futuredate", isFutureDate)
}

// RegisterGin branche les règles sur le moteur de binding de gin.
func RegisterGin() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("moteur de validation gin inattendu")
	}
	return Register(v)
}

func engine() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
		if err := Register(validate); err != nil {
			panic(err)
		}
	})
	return validate
}

// Struct valide s dans les mêmes conditions que le binding gin.
func Struct(s any) error {
	return engine().Struct(s)
}

func isPhone(fl validator.FieldLevel) bool {
	return phoneRe.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
}

func isPincode(fl validator.FieldLevel) bool {
	return pincodeRe.MatchString(fl.Field().String())
}

func isFutureDate(fl validator.FieldLevel) bool {
	return IsFutureDate(fl.Field().String())
}

// IsFutureDate vérifie qu'une date YYYY-MM-DD est strictement après aujourd'hui.
func IsFutureDate(s string) bool {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return false
	}
	y, m, day := now().Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	return d.After(today)
}

// Messages transforme une erreur de validation en messages par champ.
func Messages(err error) map[string]string {
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out["body"] = err.Error()
		}
		return out
	}
	for _, fe := range verrs {
		out[fieldName(fe)] = message(fe)
	}
	return out
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "champ obligatoire"
	case "phone":
		return "numéro de téléphone invalide"
	case "pincode":
		return "code postal invalide"
	case "futuredate":
		return "la date doit être postérieure à aujourd'hui"
	case "min", "gte", "gt":
		return fmt.Sprintf("valeur trop petite (min %s)", fe.Param())
	case "max", "lte", "lt":
		return fmt.Sprintf("valeur trop grande (max %s)", fe.Param())
	case "oneof":
		return fmt.Sprintf("valeur attendue parmi: %s", fe.Param())
	default:
		return fmt.Sprintf("règle %q non respectée", fe.Tag())
	}
}
