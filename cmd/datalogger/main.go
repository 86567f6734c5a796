// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/mpu_datalogger/internal/app"
	"github.com/relabs-tech/mpu_datalogger/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "datalogger",
	Short: "MPU-6050 data logger with SD card storage",
	Long: `datalogger captures accelerometer, gyroscope and temperature samples
from an MPU-6050 and saves them as CSV on a removable card.
Commands arrive from two buttons, the console, MQTT or the web console.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.RunDatalogger(ctx, config.Get())
	},
}

var probeCmd = &cobra.Command{
	Use: "probe",
	SuggestFor: []string{
		"pro", "prob",
	},
	Short: "read and print one sample without touching storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.InitGlobal(configPath); err != nil {
			return err
		}
		app.SetLogLevel(config.Get().LogLevel)
		registers, _ := cmd.Flags().GetBool("registers")
		return app.Probe(config.Get(), cmd.OutOrStdout(), registers)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "./datalogger_config.txt", "path to configuration file")
	probeCmd.Flags().Bool("registers", false, "also dump the sensor register map")
	rootCmd.AddCommand(probeCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
