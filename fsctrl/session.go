// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsctrl

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/fatih/structs"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/ratchet"
	"github.com/mutecomm/mutefs/session"
)

// sessionInfo is the printable part of a session, without key material.
type sessionInfo struct {
	Session      string
	Peer         string
	State        string
	MyCounter    uint64
	PeerCounter  uint64
	RemoteRange  string
	Versions     string
	Committed    bool
	LastSent     string
	FourDHActive bool
}

func counter(rs ...*ratchet.KDFRatchet) uint64 {
	for _, r := range rs {
		if r != nil {
			return r.Counter()
		}
	}
	return 0
}

func newSessionInfo(s *session.Session) *sessionInfo {
	info := &sessionInfo{
		Session:      s.ID.String(),
		Peer:         s.PeerIdentity,
		State:        s.State.String(),
		MyCounter:    counter(s.MyRatchet4DH, s.MyRatchet2DH),
		PeerCounter:  counter(s.PeerRatchet4DH, s.PeerRatchet2DH),
		RemoteRange:  s.RemoteRange.String(),
		Versions:     "-",
		Committed:    s.NewSessionCommitted,
		LastSent:     "never",
		FourDHActive: s.MyRatchet4DH != nil,
	}
	if s.Versions != nil {
		info.Versions = s.Versions.String()
	}
	if !s.LastMessageSent.IsZero() {
		info.LastSent = s.LastMessageSent.UTC().Format(time.RFC3339)
	}
	return info
}

// sessionDump is the detailed view of a session printed by
// "session list --dump". It must not contain chain or private keys.
type sessionDump struct {
	Session              string
	MyIdentity           string
	PeerIdentity         string
	State                string
	MyEphemeralPublicKey string
	MyCounter2DH         uint64 // 0 if the ratchet does not exist
	MyCounter4DH         uint64
	PeerCounter2DH       uint64
	PeerCounter4DH       uint64
	LocalRange           string
	RemoteRange          string
	LocalVersion         string
	RemoteVersion        string
	Committed            bool
	LastMessageSent      string
}

var dumpConfig = spew.ConfigState{
	Indent:         "  ",
	DisableMethods: true,
	SortKeys:       true,
}

func newSessionDump(s *session.Session) sessionDump {
	d := sessionDump{
		Session:         s.ID.String(),
		MyIdentity:      s.MyIdentity,
		PeerIdentity:    s.PeerIdentity,
		State:           s.State.String(),
		MyCounter2DH:    counter(s.MyRatchet2DH),
		MyCounter4DH:    counter(s.MyRatchet4DH),
		PeerCounter2DH:  counter(s.PeerRatchet2DH),
		PeerCounter4DH:  counter(s.PeerRatchet4DH),
		LocalRange:      s.LocalRange.String(),
		RemoteRange:     s.RemoteRange.String(),
		LocalVersion:    "-",
		RemoteVersion:   "-",
		Committed:       s.NewSessionCommitted,
		LastMessageSent: "never",
	}
	if s.MyEphemeralPublicKey != nil {
		d.MyEphemeralPublicKey = hex.EncodeToString(s.MyEphemeralPublicKey[:])
	}
	if s.Versions != nil {
		d.LocalVersion = s.Versions.Local.String()
		d.RemoteVersion = s.Versions.Remote.String()
	}
	if !s.LastMessageSent.IsZero() {
		d.LastMessageSent = s.LastMessageSent.UTC().Format(time.RFC3339)
	}
	return d
}

// marshalSorted encodes strct as JSON with sorted keys.
func marshalSorted(strct interface{}) ([]byte, error) {
	// maps are sorted by the JSON encoder, structs are not
	m := structs.Map(strct)
	jsn, err := json.Marshal(m)
	if err != nil {
		return nil, log.Error(err)
	}
	return jsn, nil
}

func printInfo(w io.Writer, info *sessionInfo) {
	for _, f := range structs.New(info).Fields() {
		fmt.Fprintf(w, "%-13s %v\n", f.Name()+":", f.Value())
	}
}

func (ctrl *FSCtrl) sessionList(w io.Writer, myID, contact string, asJSON, dump bool) error {
	peers := []string{contact}
	if contact == "" {
		var err error
		peers, err = ctrl.keyDB.GetPeers(myID)
		if err != nil {
			return err
		}
	}
	for _, peer := range peers {
		sessions, err := ctrl.keyDB.ListSessions(myID, peer)
		if err != nil {
			return err
		}
		for i, s := range sessions {
			switch {
			case dump:
				dumpConfig.Fdump(w, newSessionDump(s))
			case asJSON:
				jsn, err := marshalSorted(newSessionInfo(s))
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s\n", jsn)
			default:
				if i > 0 {
					fmt.Fprintln(w)
				}
				printInfo(w, newSessionInfo(s))
			}
		}
	}
	return nil
}

func (ctrl *FSCtrl) sessionDelete(w io.Writer, myID, contact, id string) error {
	if id == "" {
		n, err := ctrl.keyDB.DeleteAllSessions(myID, contact)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%d sessions deleted\n", n)
		return nil
	}
	b, err := hex.DecodeString(id)
	if err != nil {
		return log.Error(err)
	}
	sid, err := session.IDFromBytes(b)
	if err != nil {
		return err
	}
	ok, err := ctrl.keyDB.DeleteSession(myID, contact, sid)
	if err != nil {
		return err
	}
	if !ok {
		return log.Errorf("fsctrl: session %s with %s not found", sid, contact)
	}
	fmt.Fprintf(w, "session %s deleted\n", sid)
	return nil
}
