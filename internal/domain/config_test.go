package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rtgsim/pkg/errors"
)

func validConfig() SimulationConfig {
	cfg := DefaultSimulationConfig()
	cfg.Agents = []AgentConfig{
		{Name: "Bank_A", Balance: 1000},
		{Name: "Bank_B", Balance: 1000},
	}
	cfg.Arrivals = []ArrivalConfig{
		{Tick: 0, Sender: "Bank_A", Receiver: "Bank_B", Amount: 500},
	}
	return cfg
}

func TestConfigValidate(t *testing.T) {
	t.Run("accepts a valid config", func(t *testing.T) {
		cfg := validConfig()
		assert.NoError(t, cfg.Validate())
	})

	cases := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"zero horizon", func(c *SimulationConfig) { c.Horizon = 0 }},
		{"zero ticks per day", func(c *SimulationConfig) { c.TicksPerDay = 0 }},
		{"cycle length below 3", func(c *SimulationConfig) { c.MaxCycleLength = 2 }},
		{"no agents", func(c *SimulationConfig) { c.Agents, c.Arrivals = nil, nil }},
		{"unknown ranking", func(c *SimulationConfig) { c.CycleRanking = "fastest" }},
		{"unknown remainder", func(c *SimulationConfig) { c.BilateralRemainder = "partial" }},
		{"duplicate agent name", func(c *SimulationConfig) {
			c.Agents = append(c.Agents, AgentConfig{Name: "Bank_A"})
		}},
		{"empty agent name", func(c *SimulationConfig) { c.Agents[0].Name = "" }},
		{"unknown sender", func(c *SimulationConfig) { c.Arrivals[0].Sender = "Bank_Z" }},
		{"unknown receiver", func(c *SimulationConfig) { c.Arrivals[0].Receiver = "Bank_Z" }},
		{"self payment", func(c *SimulationConfig) { c.Arrivals[0].Receiver = "Bank_A" }},
		{"non-positive amount", func(c *SimulationConfig) { c.Arrivals[0].Amount = 0 }},
		{"arrival past horizon", func(c *SimulationConfig) { c.Arrivals[0].Tick = c.Horizon }},
		{"collateral over capacity", func(c *SimulationConfig) {
			c.Agents[0].CollateralCapacity = 10
			c.Agents[0].PostedCollateral = 20
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			assert.Error(t, err)
			assert.True(t, errors.IsConfigError(err), "want ConfigError, got %T", err)
		})
	}
}

func TestAgentIndex(t *testing.T) {
	cfg := validConfig()
	idx := cfg.AgentIndex()
	assert.Equal(t, AgentID(0), idx["Bank_A"])
	assert.Equal(t, AgentID(1), idx["Bank_B"])
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusSettled.Terminal())
	assert.True(t, StatusDropped.Terminal())
	assert.True(t, StatusSplitParent.Terminal())
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusOverdue.Terminal())
	assert.False(t, StatusPending.Terminal())
}

func TestPhaseTextRoundTrip(t *testing.T) {
	for p := PhaseInit; p <= PhaseEndOfDay; p++ {
		text, err := p.MarshalText()
		assert.NoError(t, err)

		var back Phase
		assert.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, p, back)
	}

	var p Phase
	assert.Error(t, p.UnmarshalText([]byte("warp")))
}
