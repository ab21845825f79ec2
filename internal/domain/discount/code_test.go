package discount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeCode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"save10", "SAVE10"},
		{"  Save10 ", "SAVE10"},
		{"SAVE10", "SAVE10"},
		{"", ""},
		{"  ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeCode(tt.in))
	}
}

func TestCodesEqual(t *testing.T) {
	assert.True(t, CodesEqual("save10", "SAVE10"))
	assert.True(t, CodesEqual(" save10 ", "Save10"))
	assert.False(t, CodesEqual("save10", "save11"))
}

func TestCouponUsable(t *testing.T) {
	assert.True(t, Coupon{Code: "A"}.Usable(), "nil maxUses is unlimited")
	assert.True(t, Coupon{Code: "A", MaxUses: intPtr(2), Uses: 1}.Usable())
	assert.False(t, Coupon{Code: "A", MaxUses: intPtr(2), Uses: 2}.Usable())
	assert.False(t, Coupon{Code: "A", MaxUses: intPtr(0)}.Usable())
}
