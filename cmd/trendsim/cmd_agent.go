package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/joelkehle/trendsim/internal/agent"
	"github.com/joelkehle/trendsim/internal/busclient"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var agentConcurrency int

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Serve simulations as a bus agent",
	Long: `Register on the agent bus with the campaign-simulation capability and answer
inbox messages. A message body is either a scenario JSON or {"scenario_id": "..."}
naming a stored scenario. The secret comes from agent.secret or
TRENDSIM_AGENT_SECRET.`,
	RunE: runAgent,
}

func init() {
	rootCmd.AddCommand(agentCmd)
	agentCmd.Flags().IntVar(&agentConcurrency, "concurrency", 4, "Messages processed in parallel")
}

func runAgent(cmd *cobra.Command, args []string) error {
	if strings.TrimSpace(cfg.Agent.Secret) == "" {
		return fmt.Errorf("agent secret is required (agent.secret or TRENDSIM_AGENT_SECRET)")
	}
	d, err := openDeps(cfg, true)
	if err != nil {
		return err
	}
	defer d.close()

	bus := busclient.NewClient(cfg.Agent.BusURL, cfg.Agent.AgentID, cfg.Agent.Secret)
	a := agent.New(agent.Config{Concurrency: agentConcurrency}, bus, d.runner)
	log.Info().Str("bus_url", cfg.Agent.BusURL).Str("agent_id", cfg.Agent.AgentID).Msg("starting agent")
	if err := a.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
