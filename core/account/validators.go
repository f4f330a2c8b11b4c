package account

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/socportal/jumuiya/core"
	appfs "github.com/socportal/jumuiya/fs"
)

var (
	matricTag  = "matric"
	matricText = "matric number does not belong to this department"

	levelTag  = "level"
	levelText = "invalid level"

	levelRequiredTag  = "levelrequired"
	levelRequiredText = "level is required for students"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to account attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	commonPasswords     []string
	commonPasswordsOnce sync.Once
)

// RegisterValidators registers the account validation tags on validate.
// departmentMarker is the token every matric number must contain.
func RegisterValidators(validate *validator.Validate, translator ut.Translator, departmentMarker string) {
	marker := strings.ToLower(strings.TrimSpace(departmentMarker))

	_ = validate.RegisterValidation(matricTag, func(fl validator.FieldLevel) bool {
		return IsDepartmentMatric(fl.Field().String(), marker)
	})
	core.RegisterCustomTranslation(validate, translator, matricTag, matricText)

	_ = validate.RegisterValidation(levelTag, func(fl validator.FieldLevel) bool {
		return core.ContainsString(AllLevels, fl.Field().String())
	})
	core.RegisterCustomTranslation(validate, translator, levelTag, levelText)

	validate.RegisterStructValidation(accountStructValidation, NewAccount{}, UpdateProfile{}, ResetPassword{})
	core.RegisterCustomTranslation(validate, translator, levelRequiredTag, levelRequiredText)
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

// IsDepartmentMatric reports whether matric contains marker, ignoring case.
// An empty marker accepts every matric number.
func IsDepartmentMatric(matric, marker string) bool {
	return strings.Contains(strings.ToLower(matric), strings.ToLower(marker))
}

func loadCommonPasswords() {
	data, err := appfs.FS.ReadFile("common-passwords.txt")
	if err != nil {
		return
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if pwd := strings.ToLower(strings.TrimSpace(scanner.Text())); pwd != "" {
			commonPasswords = append(commonPasswords, pwd)
		}
	}
	sort.Strings(commonPasswords)
}

func isCommonPassword(pwd string) bool {
	commonPasswordsOnce.Do(loadCommonPasswords)
	lpwd := strings.ToLower(pwd)
	idx := sort.SearchStrings(commonPasswords, lpwd)
	return idx < len(commonPasswords) && commonPasswords[idx] == lpwd
}

// accountStructValidation does struct level validation on NewAccount, UpdateProfile and ResetPassword.
func accountStructValidation(sl validator.StructLevel) {
	switch acc := sl.Current().Interface().(type) {
	case NewAccount:
		if acc.AccountType == RoleStudent && acc.Level == "" {
			sl.ReportError(acc.Level, "level", "Level", levelRequiredTag, "")
		}
		validatePassword(acc.Password, sl, acc.FirstName, acc.LastName, acc.Email, acc.MatricNumber)
	case UpdateProfile:
		if acc.Password != "" {
			validatePassword(acc.Password, sl, acc.FirstName, acc.LastName, acc.email)
		}
	case ResetPassword:
		validatePassword(acc.Password, sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - no account attrs similarity
// - no common password
func validatePassword(pwd string, sl validator.StructLevel, attrs ...string) {
	if pwd == "" {
		return // reported by `required`
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}

	pwdRunes := []rune(pwd)
	if len(pwdRunes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}

	var digitCount int
	for _, char := range pwdRunes {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}
	if digitCount == len(pwdRunes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		m := difflib.NewMatcher(strings.Split(lpwd, ""), strings.Split(strings.ToLower(attr), ""))
		if m.QuickRatio() >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}

	if isCommonPassword(pwd) {
		reportErr(pwdNoCommonTag)
	}
}
