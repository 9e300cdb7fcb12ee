package omero

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Default timeout for a single omero CLI invocation. Imports of large files
// can run long; this is a safety net, not a tuning knob.
const defaultCommandTimeout = 30 * time.Minute

// CLIGateway drives the OMERO server through the `omero` command-line
// client. One gateway per worker: the CLI keeps per-session state on disk,
// so instances must not be shared across concurrent orders.
type CLIGateway struct {
	Host     string
	Port     int
	User     string // privileged identity, e.g. "root"
	Password string
	Binary   string // defaults to "omero"
	Timeout  time.Duration
}

// Connect verifies the privileged login and returns the root session.
func (g *CLIGateway) Connect(ctx context.Context) (Session, error) {
	s := &cliSession{gw: g}
	if _, err := s.run(ctx, "sessions", "who"); err != nil {
		return nil, err
	}
	return s, nil
}

// cliSession shells out per operation, carrying the impersonation target in
// its own flags. The zero target means "act as the privileged identity".
type cliSession struct {
	gw       *CLIGateway
	sudoUser string
	group    string
	expires  time.Time
}

func (s *cliSession) Impersonate(ctx context.Context, username, group string, ttl time.Duration) (Session, error) {
	user := &cliSession{
		gw:       s.gw,
		sudoUser: username,
		group:    group,
		expires:  time.Now().Add(ttl),
	}
	// Probe the sudo login up front so bad credentials surface here,
	// not on the first import.
	if _, err := user.run(ctx, "sessions", "who"); err != nil {
		return nil, err
	}
	return user, nil
}

// importedIDs matches the object refs the import command prints on success,
// e.g. "Image:12,13" or "Plate:7".
var importedIDs = regexp.MustCompile(`(?m)^(?:Image|Plate):([0-9,]+)`)

func (s *cliSession) Import(ctx context.Context, req ImportRequest) ([]int64, error) {
	args := []string{
		"import",
		"--skip", "upgrade",
		"-T", fmt.Sprintf("%s:id:%d", req.Destination, req.DestinationID),
	}
	if req.Name != "" {
		args = append(args, "--name", req.Name)
	}
	if req.TransferMode != "" {
		args = append(args, "--transfer", req.TransferMode)
	}
	for k, v := range req.Options {
		args = append(args, "--"+k+"="+v)
	}
	args = append(args, req.Path)

	out, err := s.run(ctx, args...)
	if err != nil {
		return nil, err
	}

	var ids []int64
	for _, m := range importedIDs.FindAllStringSubmatch(out, -1) {
		for _, part := range strings.Split(m[1], ",") {
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// objRef matches the "Type:id" line printed by `omero obj new`.
var objRef = regexp.MustCompile(`([A-Za-z]+):([0-9]+)`)

func (s *cliSession) Annotate(ctx context.Context, objectID int64, kv map[string]string) (int64, error) {
	out, err := s.run(ctx, "obj", "new", "MapAnnotation", "ns=omero-adi")
	if err != nil {
		return 0, err
	}
	m := objRef.FindStringSubmatch(out)
	if m == nil {
		return 0, fmt.Errorf("omero: no annotation ref in output %q", strings.TrimSpace(out))
	}
	annID, _ := strconv.ParseInt(m[2], 10, 64)
	ref := "MapAnnotation:" + m[2]

	for k, v := range kv {
		if _, err := s.run(ctx, "obj", "map-set", ref, "mapValue", k, v); err != nil {
			return 0, err
		}
	}
	if _, err := s.run(ctx, "obj", "new", "ImageAnnotationLink",
		fmt.Sprintf("parent=Image:%d", objectID), "child="+ref); err != nil {
		return 0, err
	}
	return annID, nil
}

func (s *cliSession) FindByPath(ctx context.Context, pathFilter string, destinationID int64) ([]int64, error) {
	query := fmt.Sprintf(
		"select i.id from Image i join i.datasetLinks l where l.parent.id = %d and i.name like '%s'",
		destinationID, strings.ReplaceAll(pathFilter, "'", "''"),
	)
	out, err := s.run(ctx, "hql", "-q", "--style", "plain", query)
	if err != nil {
		return nil, err
	}
	return parseHQLIDs(out), nil
}

// parseHQLIDs extracts the trailing id column from `hql --style plain`
// output: one row per line, comma-separated, row index first.
func parseHQLIDs(out string) []int64 {
	var ids []int64
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(strings.TrimSpace(line), ",")
		if len(fields) == 0 {
			continue
		}
		if id, err := strconv.ParseInt(strings.TrimSpace(fields[len(fields)-1]), 10, 64); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *cliSession) Close() error {
	return nil
}

// run executes one omero CLI command with the session's connection and
// impersonation flags, returning combined stdout.
func (s *cliSession) run(ctx context.Context, args ...string) (string, error) {
	if s.sudoUser != "" && !s.expires.IsZero() && time.Now().After(s.expires) {
		return "", &ConnectionError{Err: fmt.Errorf("session for %s expired", s.sudoUser)}
	}

	timeout := s.gw.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	binary := s.gw.Binary
	if binary == "" {
		binary = "omero"
	}

	conn := []string{
		"--server", s.gw.Host,
		"--port", strconv.Itoa(s.gw.Port),
		"--user", s.gw.User,
		"--password", s.gw.Password,
	}
	if s.sudoUser != "" {
		conn = append(conn, "--sudo", s.gw.User, "--user", s.sudoUser)
		if s.group != "" {
			conn = append(conn, "--group", s.group)
		}
	}

	cmd := exec.CommandContext(cmdCtx, binary, append(args, conn...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		if isConnectionMessage(msg) || cmdCtx.Err() != nil {
			return "", &ConnectionError{Err: fmt.Errorf("%s %s: %s", binary, args[0], msg)}
		}
		return "", fmt.Errorf("%s %s: %s", binary, args[0], msg)
	}
	return stdout.String(), nil
}

// isConnectionMessage classifies CLI failures that indicate a dead or
// expired session rather than a bad request.
func isConnectionMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range []string{
		"cannot connect",
		"connection refused",
		"connection lost",
		"session expired",
		"session is no longer valid",
		"password check failed",
		"obtain session",
	} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
