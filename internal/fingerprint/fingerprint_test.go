package fingerprint

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestComputeDeterministic(t *testing.T) {
	t.Parallel()

	posted := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	first := Compute("Backend Engineer", "Acme", &posted, "https://boards.acme.com/jobs/42")
	second := Compute("Backend Engineer", "Acme", &posted, "https://boards.acme.com/jobs/42")

	require.Equal(t, first, second)
	require.Len(t, first, 64)
}

func TestComputeSensitiveToEachInput(t *testing.T) {
	t.Parallel()

	posted := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	base := Compute("Backend Engineer", "Acme", &posted, "https://boards.acme.com/jobs/42")

	otherDay := posted.AddDate(0, 0, 1)
	variants := []string{
		Compute("Frontend Engineer", "Acme", &posted, "https://boards.acme.com/jobs/42"),
		Compute("Backend Engineer", "Globex", &posted, "https://boards.acme.com/jobs/42"),
		Compute("Backend Engineer", "Acme", &otherDay, "https://boards.acme.com/jobs/42"),
		Compute("Backend Engineer", "Acme", &posted, "https://jobs.globex.io/42"),
	}
	for _, v := range variants {
		require.NotEqual(t, base, v)
	}
}

func TestComputeIgnoresCaseAndTimeOfDay(t *testing.T) {
	t.Parallel()

	morning := time.Date(2024, 1, 5, 8, 30, 0, 0, time.UTC)
	evening := time.Date(2024, 1, 5, 23, 59, 0, 0, time.UTC)

	a := Compute("Backend Engineer", "Acme", &morning, "https://boards.acme.com/jobs/42")
	b := Compute("backend engineer", "ACME", &evening, "https://careers.acme.com/postings/42")

	// Same title, company, calendar day, and registrable domain collapse to
	// one fingerprint even across subdomains and paths.
	require.Equal(t, a, b)
}

func TestComputeEmptyOptionalFields(t *testing.T) {
	t.Parallel()

	withNil := Compute("Backend Engineer", "", nil, "https://boards.acme.com/jobs/42")
	again := Compute("Backend Engineer", "", nil, "https://boards.acme.com/jobs/42")
	require.Equal(t, withNil, again)

	posted := time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NotEqual(t, withNil, Compute("Backend Engineer", "", &posted, "https://boards.acme.com/jobs/42"))
}
