package main

import (
	"testing"

	"github.com/handlerqueue/multipart-contract-tests/framework/ldtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadParams(t *testing.T) {
	var p commandParams
	require.True(t, p.Read([]string{"prog", "-url", "http://svc:8000", "-run", "multipart", "-port", "0"}))
	assert.Equal(t, "http://svc:8000", p.serviceURL)
	assert.Equal(t, 0, p.port)
	assert.Equal(t, "localhost", p.host)
	assert.Equal(t, defaultStatusQueryTimeout, p.statusTimeout)
	assert.Equal(t, "1234567890123456", p.hiddenStoreKey)
	assert.Equal(t, "9876543210987654", p.hiddenStoreIV)
	assert.Equal(t, []string{"multipart"}, p.filters.MustMatch.Patterns())

	var randomIV commandParams
	require.True(t, randomIV.Read([]string{"prog", "-url", "http://svc:8000", "-hidden-store-iv", ""}))
	assert.Equal(t, "", randomIV.hiddenStoreIV)
	assert.Contains(t, randomIV.rerunCommand("prog", nil), "-hidden-store-iv ''")

	var missingURL commandParams
	assert.False(t, missingURL.Read([]string{"prog"}))
}

func TestRerunCommand(t *testing.T) {
	p := commandParams{
		serviceURL:     "http://svc:8000",
		host:           "localhost",
		port:           defaultPort,
		hiddenStoreKey: "abcdefghijklmnop",
		hiddenStoreIV:  "9876543210987654",
	}
	failures := []ldtest.TestResult{
		{TestID: ldtest.TestID{Path: []string{"multipart", "upload succeeds"}}},
		{TestID: ldtest.TestID{Path: []string{"multipart", "part write failure (x)"}}},
	}
	assert.Equal(t,
		"prog -url http://svc:8000 -hidden-store-key abcdefghijklmnop"+
			" -run '^multipart$' -run '^multipart/upload succeeds$'"+
			` -run '^multipart/part write failure \(x\)$' -debug`,
		p.rerunCommand("prog", failures))
}
