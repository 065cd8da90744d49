package account

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/somalabs/darasa/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"
)

// InitValidators registers the account-specific validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(validate, translator, allRolesTag, allRolesText)
}

// allRolesValidation checks that all provided roles are known.
func allRolesValidation(fl validator.FieldLevel) bool {
	if roles, ok := fl.Field().Interface().([]string); ok {
		all := make([]string, len(AllRoles))
		copy(all, AllRoles)
		sort.Strings(all)
		for _, role := range roles {
			i := sort.SearchStrings(all, role)
			if i >= len(all) || all[i] != role {
				return false
			}
		}
		return true
	}
	return false
}
