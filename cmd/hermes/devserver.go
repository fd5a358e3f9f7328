package main

import (
	"github.com/spf13/cobra"

	"pkt.systems/hermes/internal/appconfig"
	"pkt.systems/hermes/internal/devserver"
	"pkt.systems/pslog"
)

func newDevServerCmd() *cobra.Command {
	var cfgPath string
	var root string
	var tcpAddr, sshAddr, grpcAddr, wsAddr string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Serve a directory of files over the Hermes protocol",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			dev := cfg.DevServer
			flags := cmd.Flags()
			if flags.Changed("root") {
				dev.Root = root
			}
			if flags.Changed("tcp") {
				dev.TCPAddr = tcpAddr
			}
			if flags.Changed("ssh") {
				dev.SSHAddr = sshAddr
			}
			if flags.Changed("grpc") {
				dev.GRPCAddr = grpcAddr
			}
			if flags.Changed("websocket") {
				dev.WebSocketAddr = wsAddr
			}
			srv, err := devserver.New(devserver.Config{
				Root:          dev.Root,
				TCPAddr:       dev.TCPAddr,
				SSHAddr:       dev.SSHAddr,
				GRPCAddr:      dev.GRPCAddr,
				WebSocketAddr: dev.WebSocketAddr,
				HostKeyPath:   dev.HostKeyPath,
				SSHPassword:   dev.SSHPassword,
				MaxFrameBytes: cfg.Client.MaxFrameBytes,
			}, logger)
			if err != nil {
				return err
			}
			if dev.SSHAddr != "" && dev.SSHPassword == "" {
				logger.Warn("devserver ssh accepts any client", "addr", dev.SSHAddr)
			}
			logger.Info("devserver start", "root", dev.Root)
			return srv.ListenAndServe(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default ~/.hermes/config.yaml)")
	cmd.Flags().StringVar(&root, "root", "", "directory of served files")
	cmd.Flags().StringVar(&tcpAddr, "tcp", "", "tcp listen address (empty disables)")
	cmd.Flags().StringVar(&sshAddr, "ssh", "", "ssh listen address (empty disables)")
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "grpc listen address (empty disables)")
	cmd.Flags().StringVar(&wsAddr, "websocket", "", "websocket listen address (empty disables)")
	return cmd
}
