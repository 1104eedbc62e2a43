/*
NAME
  parseurl.go

DESCRIPTION
  Parses a plain rtmp:// URL into the parameters Conn needs to dial and
  connect: host, port, app, and playpath. RTMPT/RTMPS/RTMPE and the other
  tunneled/encrypted variants the teacher's original lexer recognized are
  out of scope (spec.md §1 Non-goals), so only the rtmp scheme is
  accepted.

AUTHOR
  Dan Kortschak <dan@ausocean.org>
  Saxon Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package rtmp

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/ausocean/utils/logging"
)

// Errors.
var (
	errInvalidPath       = errors.New("invalid url path")
	errInvalidElements   = errors.New("invalid url elements")
	errUnsupportedScheme = errors.New("unsupported scheme, only rtmp:// is supported")
)

// parseURL parses an rtmp:// URL (ok, technically it is lexing). protocol
// is always 0; it is kept in the return signature for call-site
// compatibility with the teacher's multi-scheme lexer this was trimmed
// from.
func parseURL(addr string) (protocol int32, host string, port uint16, app, playpath string, err error) {
	u, err := url.Parse(addr)
	if err != nil {
		return protocol, host, port, app, playpath, fmt.Errorf("could not parse to url value: %w", err)
	}
	if u.Scheme != "rtmp" {
		return protocol, host, port, app, playpath, fmt.Errorf("%w: %s", errUnsupportedScheme, u.Scheme)
	}

	host = u.Hostname()
	if p := u.Port(); p != "" {
		pi, err := strconv.Atoi(p)
		if err != nil {
			return protocol, host, port, app, playpath, fmt.Errorf("could convert port to integer: %w", err)
		}
		port = uint16(pi)
	}

	if len(u.Path) < 1 || !path.IsAbs(u.Path) {
		return protocol, host, port, app, playpath, errInvalidPath
	}
	elems := strings.SplitN(u.Path[1:], "/", 3)
	if len(elems) < 2 || elems[0] == "" || elems[1] == "" {
		return protocol, host, port, app, playpath, errInvalidElements
	}
	app = elems[0]
	playpath = path.Join(elems[1:]...)

	switch ext := path.Ext(playpath); ext {
	case ".f4v", ".mp4":
		playpath = playpath[:len(playpath)-len(ext)]
		if !strings.HasPrefix(playpath, "mp4:") {
			playpath = "mp4:" + playpath
		}
	case ".mp3":
		playpath = playpath[:len(playpath)-len(ext)]
		if !strings.HasPrefix(playpath, "mp3:") {
			playpath = "mp3:" + playpath
		}
	case ".flv":
		playpath = playpath[:len(playpath)-len(ext)]
	}
	if u.RawQuery != "" {
		playpath += "?" + u.RawQuery
	}

	if port == 0 {
		port = 1935
	}

	return protocol, host, port, app, playpath, nil
}

// DialURL parses an rtmp://host[:port]/app/playpath URL, dials the server,
// and returns the ready Conn along with app and playpath so the caller can
// go straight to Connect/CreateStream/Publish without repeating the parse.
func DialURL(rawURL string, log logging.Logger, opts ...Option) (conn *Conn, app, playpath string, err error) {
	_, host, port, app, playpath, err := parseURL(rawURL)
	if err != nil {
		return nil, "", "", pkgerrors.Wrap(err, "rtmp: could not parse url")
	}
	conn, err = Dial(fmt.Sprintf("%s:%d", host, port), log, opts...)
	if err != nil {
		return nil, "", "", err
	}
	return conn, app, playpath, nil
}
