package picker

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/jlettvin/browseiso/internal/log"
)

const (
	// xdg-desktop-portal service and interface constants
	portalService        = "org.freedesktop.portal.Desktop"
	portalPath           = "/org/freedesktop/portal/desktop"
	fileChooserInterface = "org.freedesktop.portal.FileChooser"
	requestInterface     = "org.freedesktop.portal.Request"

	// Response codes of org.freedesktop.portal.Request.Response
	responseSuccess   = 0
	responseCancelled = 1

	portalTitle = "Search for ISO file archive"
)

// filterRule is one (type, pattern) pair of a portal file filter; type 0
// is a glob pattern
type filterRule struct {
	Kind    uint32
	Pattern string
}

// filter is the a(sa(us)) filter structure of FileChooser.OpenFile
type filter struct {
	Name  string
	Rules []filterRule
}

// Portal picks files through the desktop's native file chooser via
// org.freedesktop.portal.FileChooser
type Portal struct {
	conn       Connection
	extensions []string
	connectFn  func() (Connection, error)
}

// PortalOption is a functional option for Portal
type PortalOption func(*Portal)

// WithConnection sets a custom DBus connection (for testing)
func WithConnection(conn Connection) PortalOption {
	return func(p *Portal) {
		p.conn = conn
		p.connectFn = nil
	}
}

// NewPortal creates a portal picker connected to the session bus
func NewPortal(extensions []string, opts ...PortalOption) (*Portal, error) {
	p := &Portal{
		extensions: extensions,
		connectFn:  ConnectSessionBus,
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.conn == nil {
		conn, err := p.connectFn()
		if err != nil {
			return nil, fmt.Errorf("connect to session bus: %w", err)
		}
		p.conn = conn
	}

	return p, nil
}

// Close closes the DBus connection
func (p *Portal) Close() error {
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Choose opens the file chooser and waits for its Response signal
func (p *Portal) Choose(ctx context.Context, defaultPath, startURI string) (string, bool, error) {
	names := p.conn.Names()
	if len(names) == 0 {
		return "", false, fmt.Errorf("session bus connection has no unique name")
	}

	token := "browseiso_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	handle := requestPath(names[0], token)

	// Subscribe before calling OpenFile so a fast Response cannot be missed
	match := []dbus.MatchOption{
		dbus.WithMatchObjectPath(handle),
		dbus.WithMatchInterface(requestInterface),
		dbus.WithMatchMember("Response"),
	}
	if err := p.conn.AddMatchSignal(match...); err != nil {
		return "", false, fmt.Errorf("subscribe to portal response: %w", err)
	}
	defer func() { _ = p.conn.RemoveMatchSignal(match...) }()

	signals := make(chan *dbus.Signal, 8)
	p.conn.Signal(signals)
	defer p.conn.RemoveSignal(signals)

	dir := startDirectory(defaultPath, startURI)
	log.Debug("opening portal file chooser", "dir", dir, "handle", handle)

	obj := p.conn.Object(portalService, dbus.ObjectPath(portalPath))
	var got dbus.ObjectPath
	call := obj.CallWithContext(ctx, fileChooserInterface+".OpenFile", 0, "", portalTitle, p.options(token, dir))
	if call.Err != nil {
		return "", false, fmt.Errorf("OpenFile: %w", call.Err)
	}
	if err := call.Store(&got); err != nil {
		return "", false, fmt.Errorf("store OpenFile result: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			p.closeRequest(got)
			log.Debug("closed, no files selected")
			return "", false, nil
		case sig, ok := <-signals:
			if !ok {
				return "", false, fmt.Errorf("session bus connection closed")
			}
			if sig.Path != got || sig.Name != requestInterface+".Response" {
				continue
			}
			return parseResponse(sig.Body)
		}
	}
}

// options builds the OpenFile options vardict
func (p *Portal) options(token, dir string) map[string]dbus.Variant {
	archives := filter{Name: "Archive images"}
	for _, ext := range p.extensions {
		archives.Rules = append(archives.Rules,
			filterRule{Kind: 0, Pattern: "*" + strings.ToLower(ext)},
			filterRule{Kind: 0, Pattern: "*" + strings.ToUpper(ext)},
		)
	}
	all := filter{Name: "All files", Rules: []filterRule{{Kind: 0, Pattern: "*"}}}

	opts := map[string]dbus.Variant{
		"handle_token":   dbus.MakeVariant(token),
		"modal":          dbus.MakeVariant(true),
		"multiple":       dbus.MakeVariant(false),
		"filters":        dbus.MakeVariant([]filter{archives, all}),
		"current_filter": dbus.MakeVariant(archives),
	}
	if dir != "" && dir != "." {
		// current_folder is a NUL-terminated byte string
		opts["current_folder"] = dbus.MakeVariant(append([]byte(dir), 0))
	}
	return opts
}

// closeRequest dismisses a pending dialog
func (p *Portal) closeRequest(handle dbus.ObjectPath) {
	call := p.conn.Object(portalService, handle).Call(requestInterface+".Close", 0)
	if call.Err != nil {
		log.Debug("failed to close portal request", "handle", handle, "error", call.Err)
	}
}

// parseResponse decodes the (u response, a{sv} results) body of a
// Request.Response signal
func parseResponse(body []any) (string, bool, error) {
	if len(body) < 2 {
		return "", false, fmt.Errorf("malformed portal response: %d values", len(body))
	}

	code, ok := body[0].(uint32)
	if !ok {
		return "", false, fmt.Errorf("malformed portal response code %T", body[0])
	}

	switch code {
	case responseSuccess:
	case responseCancelled:
		log.Debug("closed, no files selected")
		return "", false, nil
	default:
		return "", false, fmt.Errorf("portal request ended with code %d", code)
	}

	results, ok := body[1].(map[string]dbus.Variant)
	if !ok {
		return "", false, fmt.Errorf("malformed portal results %T", body[1])
	}

	v, ok := results["uris"]
	if !ok {
		return "", false, fmt.Errorf("portal response has no uris")
	}
	uris, ok := v.Value().([]string)
	if !ok || len(uris) == 0 {
		return "", false, fmt.Errorf("portal response has no uris")
	}

	u, err := url.Parse(uris[0])
	if err != nil {
		return "", false, fmt.Errorf("parse selected uri: %w", err)
	}
	if u.Scheme != "file" {
		return "", false, fmt.Errorf("selected uri %q is not a local file", uris[0])
	}

	log.Debug("archive selected", "path", u.Path)
	return u.Path, true, nil
}

// requestPath predicts the Request object path the portal will use for a
// handle_token: the caller's unique name without the leading ':' and with
// '.' replaced by '_'
func requestPath(uniqueName, token string) dbus.ObjectPath {
	sender := strings.ReplaceAll(strings.TrimPrefix(uniqueName, ":"), ".", "_")
	return dbus.ObjectPath(portalPath + "/request/" + sender + "/" + token)
}
