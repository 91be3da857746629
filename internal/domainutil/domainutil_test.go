package domainutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistrable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "subdomain collapses", in: "https://boards.acme.com/jobs/42", want: "acme.com"},
		{name: "bare domain", in: "https://acme.com", want: "acme.com"},
		{name: "multi label suffix", in: "https://jobs.example.co.uk/list", want: "example.co.uk"},
		{name: "uppercase host", in: "https://Boards.ACME.com", want: "acme.com"},
		{name: "port stripped", in: "http://boards.acme.com:8080/x", want: "acme.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Registrable(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRegistrableFallsBackToHost(t *testing.T) {
	t.Parallel()

	got, err := Registrable("http://localhost:9090/feed")
	require.NoError(t, err)
	require.Equal(t, "localhost", got)
}

func TestRegistrableRejectsHostless(t *testing.T) {
	t.Parallel()

	_, err := Registrable("not-a-url")
	require.Error(t, err)
}

func TestRegistrableOrHost(t *testing.T) {
	t.Parallel()

	require.Equal(t, "acme.com", RegistrableOrHost("https://boards.acme.com/jobs"))
	require.Equal(t, "", RegistrableOrHost("::::"))
}
