package main

import (
	"context"
	"os"

	"github.com/Speshl/gorrc_teleop/internal/app"
	"github.com/Speshl/gorrc_teleop/internal/config"
	"github.com/Speshl/gorrc_teleop/internal/gamepad"
	"github.com/Speshl/gorrc_teleop/internal/session"
	"github.com/Speshl/gorrc_teleop/internal/signaling"
	"github.com/Speshl/gorrc_teleop/internal/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		log.Error().Err(err).Msg("shutdown with error")
		os.Exit(1)
	}
	log.Info().Msg("shutdown successfully")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gorrc",
		Short:         "Teleoperation control link for RC vehicles over WebRTC",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.Bool("log-pretty", config.DefaultLogPretty, "human readable console logs")
	flags.String("server", config.DefaultServer, "signaling server host:port or url")
	flags.String("token", config.DefaultToken, "signaling auth token")
	config.BindFlag("LOG_LEVEL", flags.Lookup("log-level"))
	config.BindFlag("LOG_PRETTY", flags.Lookup("log-pretty"))
	config.BindFlag("SERVER", flags.Lookup("server"))
	config.BindFlag("TOKEN", flags.Lookup("token"))

	root.AddCommand(newOperatorCmd(), newVehicleCmd(), newSignalCmd())
	return root
}

func newOperatorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "operator",
		Short: "Read the gamepad and drive a remote vehicle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetOperatorConfig()
			util.SetupLogger(cfg.Log)

			joystick := gamepad.NewJoystick(cfg.Sampler.JoystickID, gamepad.TriggerMap{
				ForwardAxis:   cfg.Sampler.ForwardTriggerAxis,
				ReverseAxis:   cfg.Sampler.ReverseTriggerAxis,
				ForwardButton: cfg.Sampler.ForwardButton,
				ReverseButton: cfg.Sampler.ReverseButton,
			})
			defer joystick.Close()

			peer, err := session.NewPionPeer(cfg.Session)
			if err != nil {
				return err
			}

			operator := app.NewOperator(cfg, joystick, peer, nil)
			return operator.Start(cmd.Context())
		},
	}
	cmd.Flags().Int("joystick", config.DefaultJoystickID, "joystick device id")
	cmd.Flags().Duration("handshake-timeout", config.DefaultHandshakeTimeout, "fail the session if not connected in time, 0 disables")
	config.BindFlag("JOYSTICK_ID", cmd.Flags().Lookup("joystick"))
	config.BindFlag("HANDSHAKE_TIMEOUT", cmd.Flags().Lookup("handshake-timeout"))
	return cmd
}

func newVehicleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Answer operator sessions and drive the servos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetVehicleConfig()
			util.SetupLogger(cfg.Log)

			driver, err := app.NewCommandDriver(cfg.Command)
			if err != nil {
				return err
			}

			car, err := app.NewVehicle(cfg, driver)
			if err != nil {
				return err
			}
			return car.Start(cmd.Context())
		},
	}
	cmd.Flags().String("driver", config.DefaultCommandDriver, "servo driver (pca9685, pipwm)")
	cmd.Flags().Bool("cam", config.DefaultCamEnable, "stream the camera")
	config.BindFlag("SERVODRIVER", cmd.Flags().Lookup("driver"))
	config.BindFlag("CAM_ENABLED", cmd.Flags().Lookup("cam"))
	return cmd
}

func newSignalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "signal",
		Short: "Run the signaling relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.GetSignalServerConfig()
			util.SetupLogger(cfg.Log)

			server := signaling.NewServer(cfg)
			return app.Run(cmd.Context(), "signal", server.Start)
		},
	}
	cmd.Flags().String("listen", config.DefaultListen, "listen address")
	config.BindFlag("LISTEN", cmd.Flags().Lookup("listen"))
	return cmd
}
