package env

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestArgsCarriesParsedFlags(t *testing.T) {
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	args := Args{
		Test:    fs.Bool("test", false, ""),
		Verbose: fs.Bool("verbose", false, ""),
		API:     fs.String("api", APIBaseURL, ""),
		Broker:  fs.String("broker", "", ""),
		Store:   fs.String("store", StoreFile, ""),
	}

	assert.NoError(t, fs.Parse([]string{"-test", "-api", "http://10.0.0.100:5000"}))

	assert.True(t, *args.Test)
	assert.False(t, *args.Verbose)
	assert.Equal(t, "http://10.0.0.100:5000", *args.API)
	assert.Equal(t, "", *args.Broker)
	assert.Equal(t, StoreFile, *args.Store)
}
