// ftpclient drives a single engine command against a configured server:
// connect, list, get, put, mkdir, rmdir, rm, rename, chmod, or a raw
// command. One process, one command, exit status reflects the result.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"

	lognoop "github.com/fclairamb/go-log/noop"
	"github.com/fclairamb/ftpclient"
	"github.com/fclairamb/ftpclient/log/gokit"
)

func main() {
	var (
		host        string
		port        int
		protocol    string
		user        string
		pass        string
		account     string
		anonymous   bool
		passive     bool
		remotePath  string
		localPath   string
		debug       bool
		timeoutSecs int
	)

	flag.StringVar(&host, "host", "", "server host (required)")
	flag.IntVar(&port, "port", 21, "server port")
	flag.StringVar(&protocol, "protocol", "ftp", "ftp | ftps | ftpes | ftp-insecure")
	flag.StringVar(&user, "user", "", "username")
	flag.StringVar(&pass, "pass", "", "password")
	flag.StringVar(&account, "account", "", "account, if the server asks for one after PASS")
	flag.BoolVar(&anonymous, "anonymous", false, "log in anonymously")
	flag.BoolVar(&passive, "passive", true, "prefer passive mode")
	flag.StringVar(&remotePath, "remote", "/", "remote path the command operates on")
	flag.StringVar(&localPath, "local", "", "local path (get/put)")
	flag.BoolVar(&debug, "debug", false, "log every engine event to stderr")
	flag.IntVar(&timeoutSecs, "timeout", 30, "connect timeout in seconds")
	flag.Parse()

	command := flag.Arg(0)
	if host == "" || command == "" {
		fmt.Fprintln(os.Stderr, "usage: ftpclient -host=HOST [flags] "+
			"<connect|ls|get|put|mkdir|rmdir|rm|rename|chmod|raw> [args...]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	logger := lognoop.NewNoOpLogger()
	if debug {
		logger = gokit.NewGKLoggerStdout().With(
			"ts", gokit.GKDefaultTimestampUTC,
			"caller", gokit.GKDefaultCaller,
		)
	}

	server := ftpclient.Server{
		Host:              host,
		Port:              port,
		Protocol:          parseProtocol(protocol),
		PassivePreference: ftpclient.PassiveModePreferPassive,
	}
	if !passive {
		server.PassivePreference = ftpclient.PassiveModePreferActive
	}

	creds := ftpclient.Credentials{LogonType: ftpclient.LogonNormal, User: user, Password: pass, Account: account}
	if anonymous {
		creds = ftpclient.Credentials{LogonType: ftpclient.LogonAnonymous}
	}

	config := ftpclient.DefaultEngineConfig()
	config.ConnectTimeout = time.Duration(timeoutSecs) * time.Second
	config.UsePassive = passive

	engine := ftpclient.NewEngine(config, logger)
	cs := ftpclient.NewControlSocket(engine, server, &cliNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	go watchSignals(cancel, cs)

	status, err := cs.Connect(ctx, creds)
	if !status.Ok() {
		fmt.Fprintf(os.Stderr, "connect failed: %s (%v)\n", status, err)
		os.Exit(1)
	}
	defer cs.Close()

	if err := runCommand(cs, command, remotePath, localPath, flag.Args()[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func watchSignals(cancel context.CancelFunc, cs *ftpclient.ControlSocket) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(ch)

	<-ch
	cs.Cancel()
	cancel()
}

func parseProtocol(s string) ftpclient.Protocol {
	switch strings.ToLower(s) {
	case "ftps":
		return ftpclient.ProtocolFTPS
	case "ftpes":
		return ftpclient.ProtocolFTPES
	case "ftp-insecure", "insecure":
		return ftpclient.ProtocolInsecureFTP
	default:
		return ftpclient.ProtocolFTP
	}
}

func runCommand(cs *ftpclient.ControlSocket, command, remotePath, localPath string, args []string) error {
	path := ftpclient.NewServerPath(remotePath, ftpclient.PathStyleUnix)

	switch command {
	case "connect":
		return nil
	case "ls":
		return runList(cs, path)
	case "get":
		return runDownload(cs, path, localPath)
	case "put":
		return runUpload(cs, path, localPath)
	case "mkdir":
		return statusErr(cs.Mkdir(path))
	case "rmdir":
		return statusErr(cs.RemoveDir(path.Parent(), path.LastSegment()))
	case "rm":
		return statusErr(cs.Delete(path.Parent(), []string{path.LastSegment()}))
	case "rename":
		if len(args) != 1 {
			return fmt.Errorf("rename requires exactly one argument: the destination path")
		}

		to := ftpclient.NewServerPath(args[0], ftpclient.PathStyleUnix)

		return statusErr(cs.Rename(path.Parent(), path.LastSegment(), to.Parent(), to.LastSegment()))
	case "chmod":
		if len(args) != 1 {
			return fmt.Errorf("chmod requires exactly one argument: the permission string")
		}

		return statusErr(cs.Chmod(path.Parent(), path.LastSegment(), args[0]))
	case "raw":
		return statusErr(cs.RawCommand(strings.Join(args, " ")))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runList(cs *ftpclient.ControlSocket, path ftpclient.ServerPath) error {
	listing, status, err := cs.ListResult(&path, false)
	if !status.Ok() {
		return statusErr(status, err)
	}

	for _, entry := range listing.Entries {
		kind := "-"

		switch {
		case entry.IsDir:
			kind = "d"
		case entry.IsLink:
			kind = "l"
		}

		fmt.Printf("%s %12d %s %s\n", kind, entry.Size, entry.Permissions, entry.Name)
	}

	return nil
}

func runDownload(cs *ftpclient.ControlSocket, path ftpclient.ServerPath, localPath string) error {
	if localPath == "" {
		return fmt.Errorf("get requires -local")
	}

	return statusErr(cs.Download(ftpclient.DownloadArgs{
		Path:      path.Parent(),
		Name:      path.LastSegment(),
		LocalPath: localPath,
		Fs:        afero.NewOsFs(),
		Binary:    true,
	}))
}

func runUpload(cs *ftpclient.ControlSocket, path ftpclient.ServerPath, localPath string) error {
	if localPath == "" {
		return fmt.Errorf("put requires -local")
	}

	return statusErr(cs.Upload(ftpclient.UploadArgs{
		Path:      path.Parent(),
		Name:      path.LastSegment(),
		LocalPath: localPath,
		Fs:        afero.NewOsFs(),
		Binary:    true,
	}))
}

func statusErr(status ftpclient.Status, err error) error {
	if status.Ok() {
		return nil
	}

	if err != nil {
		return fmt.Errorf("%s: %w", status, err)
	}

	return fmt.Errorf("%s", status)
}

// cliNotifier prints host-visible engine events to stdout/stderr; it
// implements ftpclient.Notifier.
type cliNotifier struct{}

func (cliNotifier) Log(category ftpclient.MessageCategory, server ftpclient.Server, line string) {
	if category == ftpclient.MsgError {
		fmt.Fprintf(os.Stderr, "%s: %s\n", server, line)
		return
	}

	fmt.Printf("%s: %s\n", server, line)
}

func (cliNotifier) StatusChanged(server ftpclient.Server, status string) {
	fmt.Printf("%s: %s\n", server, status)
}

func (cliNotifier) DirectoryListingChanged(ftpclient.Server, ftpclient.ServerPath) {}

func (cliNotifier) TransferProgress(server ftpclient.Server, status ftpclient.TransferStatus) {
	fmt.Printf("\r%s: %d bytes", server, status.BytesSoFar)
}

func (cliNotifier) OperationCompleted(ftpclient.Server, ftpclient.Status, error) {}

func (cliNotifier) FileExists(ftpclient.Server, ftpclient.FileExistsPrompt) ftpclient.FileExistsAction {
	return ftpclient.FileExistsOverwrite
}

func (cliNotifier) InteractiveLogin(_ ftpclient.Server, prompt ftpclient.InteractiveLoginPrompt) (string, bool) {
	fmt.Printf("%s: ", prompt.Field)

	var value string
	if _, err := fmt.Scanln(&value); err != nil {
		return "", false
	}

	return value, true
}

func (cliNotifier) VerifyCertificate(server ftpclient.Server, prompt ftpclient.CertificatePrompt) bool {
	for _, cert := range prompt.Chain {
		fmt.Printf("%s: certificate subject=%s issuer=%s serial=%s\n",
			server, cert.Subject, cert.Issuer, cert.SerialNumber.String())
	}

	return true
}
