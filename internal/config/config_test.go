package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionDSNDefaultsPort(t *testing.T) {
	c := Connection{Host: "localhost", User: "app", Password: "secret", Database: "widgets"}
	assert.Equal(t, "host=localhost port=5432 user=app password=secret dbname=widgets sslmode=prefer", c.DSN())
}

func TestConnectionDSNHonorsExplicitPort(t *testing.T) {
	c := Connection{Host: "localhost", Port: 6543, User: "app", Password: "secret", Database: "widgets"}
	assert.Contains(t, c.DSN(), "port=6543")
}

func TestDefaultOptionsChecksForDataLoss(t *testing.T) {
	o := DefaultOptions()
	assert.True(t, o.CheckForDataLoss)
	assert.False(t, o.Force)
	assert.False(t, o.DryRun)
}
