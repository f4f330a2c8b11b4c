package account

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsDepartmentMatric(t *testing.T) {
	tests := []struct {
		matric string
		want   bool
	}{
		{"ABC/SOC/2021", true},
		{"abc/soc/2021", true},
		{"ABC-SOC-21", true},
		{"soc/21/001", true},
		{"ABC/ARTS/2021", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.matric, func(t *testing.T) {
			assert.Equal(t, tt.want, IsDepartmentMatric(tt.matric, "soc"))
		})
	}
	assert.True(t, IsDepartmentMatric("anything", ""), "an empty marker accepts everything")
}

func TestAccount_Password(t *testing.T) {
	var acc Account
	require.NoError(t, acc.SetPassword("Quiet-Harbour-42"))
	assert.NotEqual(t, []byte("Quiet-Harbour-42"), acc.PasswordHash)
	assert.NoError(t, acc.CheckPassword("Quiet-Harbour-42"))
	assert.Error(t, acc.CheckPassword("quiet-harbour-42"))
}

func TestAccount_ProfileCompletion(t *testing.T) {
	acc := Account{FirstName: "Ada", LastName: "Eze", Email: "ada@example.com", Level: "200"}
	assert.Equal(t, 40, acc.computeProfileCompletion())

	acc.MatricNumber, acc.Gender, acc.Phone = "soc/1", "female", "+254700000000"
	assert.Equal(t, 70, acc.computeProfileCompletion())
}
