package extraction

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certproof/pkg/testutil"
)

var fixedNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func TestFallback_Dates(t *testing.T) {
	testutil.Given(t, "text with two dates", func(t *testing.T) {
		f := Fallback("Né le 12/05/1988\nExpire le 03-11-2031", 62, fixedNow)

		testutil.Then(t, "the first is the birth date and the last the expiry", func(t *testing.T) {
			require.NotNil(t, f.DateOfBirth)
			require.NotNil(t, f.ExpiryDate)
			assert.Equal(t, "12/05/1988", *f.DateOfBirth)
			assert.Equal(t, "03-11-2031", *f.ExpiryDate)
		})
	})

	testutil.Given(t, "three dates", func(t *testing.T) {
		f := Fallback("01/01/1990 15/06/2020 15/06/2030", 50, fixedNow)

		testutil.Then(t, "expiry is the last match", func(t *testing.T) {
			assert.Equal(t, "01/01/1990", *f.DateOfBirth)
			assert.Equal(t, "15/06/2030", *f.ExpiryDate)
		})
	})

	testutil.Given(t, "a single date", func(t *testing.T) {
		f := Fallback("Date: 01/01/1990", 50, fixedNow)

		testutil.Then(t, "it is the birth date", func(t *testing.T) {
			require.NotNil(t, f.DateOfBirth)
			assert.Equal(t, "01/01/1990", *f.DateOfBirth)
		})
		testutil.And(t, "no expiry is guessed", func(t *testing.T) {
			assert.Nil(t, f.ExpiryDate)
		})
	})
}

func TestFallback_DocumentNumberPriority(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *string
	}{
		{"two letters seven digits beats nine digits", "ID 123456789 CARTE CI0012345", ptr("CI0012345")},
		{"nine digits beats one letter eight digits", "N A12345678 ou 987654321", ptr("987654321")},
		{"one letter eight digits", "No A12345678", ptr("A12345678")},
		{"no match", "aucun numero", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Fallback(tt.text, 40, fixedNow)
			assert.Equal(t, tt.want, f.DocumentNumber)
		})
	}
}

func TestFallback_FullName(t *testing.T) {
	text := "REPUBLIQUE DE COTE D'IVOIRE\nCI0012345\nNom\nKOUASSI Amenan Aïcha\nYAO KOFFI"

	f := Fallback(text, 40, fixedNow)

	require.NotNil(t, f.FullName)
	assert.Equal(t, "KOUASSI Amenan Aïcha", *f.FullName)
}

func TestFallback_FullNameComposesDecomposedAccents(t *testing.T) {
	// decomposed accents are letters only after NFC composition
	f := Fallback("Kone\u0301 Ai\u0308cha", 40, fixedNow)

	require.NotNil(t, f.FullName)
	assert.Equal(t, "Kon\u00e9 A\u00efcha", *f.FullName)
}

func TestFallback_RejectsShortOrSingleTokenNames(t *testing.T) {
	f := Fallback("YAO\nAB C\nKOUASSIAMENAN\nYAO 1ER", 40, fixedNow)
	assert.Nil(t, f.FullName)
}

func TestFallback_ConfidenceIsOCRConfidence(t *testing.T) {
	assert.Equal(t, 42.5, Fallback("", 42.5, fixedNow).Confidence)
	assert.Equal(t, 100.0, Fallback("", 123, fixedNow).Confidence)
	assert.Equal(t, 0.0, Fallback("", -1, fixedNow).Confidence)
}

func TestFallback_EmptyTextHasNoFields(t *testing.T) {
	f := Fallback("", 10, fixedNow)
	for _, name := range FieldNames() {
		_, ok := f.Get(name)
		assert.False(t, ok, name)
	}
}

func TestFallback_ValidMRZSetsFlagsAndFillsGaps(t *testing.T) {
	text := "CARTE NATIONALE D'IDENTITE\n" +
		"IDCIVCI00123451<<<<<<<<<<<<<<<\n" +
		"9001158F3006140CIV<<<<<<<<<<<6\n" +
		"KOUASSI<<AMENAN<MARIE<<<<<<<<<"

	f := Fallback(text, 55, fixedNow)

	assert.True(t, f.MRZValidated)
	assert.True(t, f.IsUEMOA)
	assert.True(t, f.IsCEDEAO)
	assert.Equal(t, "CI0012345", *f.DocumentNumber)
	assert.Equal(t, "15/01/1990", *f.DateOfBirth)
	assert.Equal(t, "14/06/2030", *f.ExpiryDate)
	assert.Equal(t, "CIV", *f.Nationality)
	assert.Equal(t, "F", *f.Gender)
	assert.Equal(t, "AMENAN MARIE KOUASSI", *f.FullName)
	assert.Equal(t, 55.0, f.Confidence)
}

func TestFallback_InvalidMRZLeavesFlagsFalse(t *testing.T) {
	text := "IDCIVCI00123459<<<<<<<<<<<<<<<\n" +
		"9001158F3006140CIV<<<<<<<<<<<6\n" +
		"KOUASSI<<AMENAN<MARIE<<<<<<<<<"

	f := Fallback(text, 55, fixedNow)

	assert.False(t, f.MRZValidated)
	assert.False(t, f.IsUEMOA)
	assert.Nil(t, f.Nationality)
}

func ptr(s string) *string { return &s }
