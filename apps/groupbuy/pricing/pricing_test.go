package pricing

import (
	"testing"

	"optifish/apps/groupbuy/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "want %s, got %s", want, got)
}

func TestCalculateTierFiveBCAJNE(t *testing.T) {
	q, err := Calculate(d("100000"), 5, "BCA", "JNE")
	require.NoError(t, err)

	assert.Equal(t, 7, q.DiscountPercent)
	assertDecimal(t, "93000", q.DiscountedPrice)
	assertDecimal(t, "1395", q.PlatformTax)
	assertDecimal(t, "1860", q.PaymentTax)
	assertDecimal(t, "25000", q.ExpeditionCost)
	assertDecimal(t, "121255", q.Total)
	assert.Equal(t, int64(10), q.LoyaltyPoints)
}

func TestTotalIsSumOfComponents(t *testing.T) {
	cases := []struct {
		price      string
		tier       int
		method     string
		expedition string
	}{
		{"100000", 2, "GoPay", "Tiki"},
		{"47999.99", 10, "QRIS", "Anter Aja"},
		{"1", 5, "Mandiri", "SiCepat"},
		{"250000.5", 2, "ShopeePay", "Lion Parcel"},
	}
	for _, tc := range cases {
		q, err := Calculate(d(tc.price), tc.tier, tc.method, tc.expedition)
		require.NoError(t, err)

		sum := q.DiscountedPrice.Add(q.PlatformTax).Add(q.PaymentTax).Add(q.ExpeditionCost)
		assert.True(t, sum.Equal(q.Total), "%+v", tc)
		assert.True(t, q.PlatformTax.Equal(q.DiscountedPrice.Mul(d("0.015"))))
	}
}

func TestDiscountTiers(t *testing.T) {
	for tier, want := range map[int]string{2: "95000", 5: "93000", 10: "90000"} {
		q, err := Calculate(d("100000"), tier, "BCA", "JNE")
		require.NoError(t, err)
		assertDecimal(t, want, q.DiscountedPrice)
	}
}

func TestUnknownPaymentMethodHasNoTax(t *testing.T) {
	q, err := Calculate(d("100000"), 2, "Cash", "GoSend")
	require.NoError(t, err)

	assert.Equal(t, 0, q.PaymentTaxRate)
	assert.True(t, q.PaymentTax.IsZero())
	assertDecimal(t, "95000", q.DiscountedPrice)
	assertDecimal(t, "116425", q.Total) // 95000 + 1425 + 20000
}

func TestPaymentMethodRates(t *testing.T) {
	for method, rate := range map[string]int{"BNI": 2, "Dana": 3, "OVO": 3, "QRIS": 4, "shopeepay": 4} {
		q, err := Calculate(d("100000"), 2, method, "JNE")
		require.NoError(t, err)
		assert.Equal(t, rate, q.PaymentTaxRate, method)
	}
}

func TestCalculateRejects(t *testing.T) {
	_, err := Calculate(d("100000"), 3, "BCA", "JNE")
	assert.ErrorIs(t, err, model.ErrInvalidTier)

	_, err = Calculate(d("100000"), 5, "BCA", "Kurir Tetangga")
	assert.ErrorIs(t, err, model.ErrUnknownExpedition)

	_, err = Calculate(decimal.Zero, 5, "BCA", "JNE")
	assert.ErrorIs(t, err, model.ErrInvalidPrice)

	_, err = Calculate(d("-10"), 5, "BCA", "JNE")
	assert.ErrorIs(t, err, model.ErrInvalidPrice)
}

func TestRoundedKeepsFullPrecisionQuote(t *testing.T) {
	q, err := Calculate(d("33333.33"), 10, "Dana", "JNT")
	require.NoError(t, err)

	r := q.Rounded()
	assertDecimal(t, "450", r.PlatformTax)
	assert.True(t, r.Total.Equal(q.Total.Round(2)))
	assert.False(t, q.PlatformTax.Equal(r.PlatformTax), "Rounded must not mutate the quote")
}

func TestLoyaltyPoints(t *testing.T) {
	assert.Equal(t, int64(0), LoyaltyPoints(d("99999.99")))
	assert.Equal(t, int64(10), LoyaltyPoints(d("100000")))
	assert.Equal(t, int64(30), LoyaltyPoints(d("399999")))
	assert.Equal(t, int64(0), LoyaltyPoints(d("-5")))
}

func TestOptionsAreCopies(t *testing.T) {
	methods := PaymentMethods()
	methods[0].TaxRate = 99
	assert.Equal(t, 2, PaymentMethods()[0].TaxRate)
	assert.Len(t, Expeditions(), 9)
	assert.Len(t, Tiers(), 3)
	assert.True(t, IsExpedition("jne"))
	assert.False(t, IsExpedition("DHL"))
}
