// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsctrl

import (
	"fmt"
	"io"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/def"
	"github.com/mutecomm/mutefs/fsengine"
	"github.com/mutecomm/mutefs/identity"
	"github.com/mutecomm/mutefs/keydb"
	"github.com/mutecomm/mutefs/msg"
	"github.com/mutecomm/mutefs/session"
	"github.com/mutecomm/mutefs/session/memstore"
	"github.com/mutecomm/mutefs/transport"
)

type demoConfig struct {
	messages   int
	dropAccept bool
	keyDB      *keydb.KeyDB // use in-memory store if nil
}

type demoParty struct {
	kp      *identity.KeyPair
	engine  *fsengine.Engine
	contact fsengine.Contact
}

// printer prints the interesting session events of a party.
type printer struct {
	fsengine.NopListener
	w    io.Writer
	name string
}

func (p *printer) NewSessionInitiated(s *session.Session, peer string) {
	fmt.Fprintf(p.w, "%s: initiated session %s with %s\n", p.name, s.ID, peer)
}

func (p *printer) ResponderSessionEstablished(s *session.Session, peer string, preempted bool) {
	fmt.Fprintf(p.w, "%s: accepted session %s from %s (version %s, preempted=%t)\n",
		p.name, s.ID, peer, s.Versions.Local, preempted)
}

func (p *printer) InitiatorSessionEstablished(s *session.Session, peer string) {
	fmt.Fprintf(p.w, "%s: session %s with %s established (version %s)\n",
		p.name, s.ID, peer, s.Versions.Local)
}

func (p *printer) RejectReceived(id session.ID, peer string, messageID uint64, cause msg.RejectCause) {
	fmt.Fprintf(p.w, "%s: %s rejected message %016x in session %s: %s\n",
		p.name, peer, messageID, id, cause)
}

func (p *printer) SessionNotFound(id session.ID, peer string) {
	fmt.Fprintf(p.w, "%s: unknown session %s from %s\n", p.name, id, peer)
}

func (p *printer) SessionBadDHState(id session.ID, peer string) {
	fmt.Fprintf(p.w, "%s: session %s from %s cannot decrypt this DH mode\n", p.name, id, peer)
}

func (p *printer) First4DHMessageReceived(s *session.Session, peer string) {
	fmt.Fprintf(p.w, "%s: first 4DH message from %s in session %s\n", p.name, peer, s.ID)
}

func (p *printer) SessionTerminated(id session.ID, peer string, cause msg.TerminateCause) {
	fmt.Fprintf(p.w, "%s: session %s terminated by %s: %s\n", p.name, id, peer, cause)
}

func newDemoParty(
	w io.Writer,
	name string,
	store session.Store,
	queue *transport.Queue,
) (*demoParty, error) {
	kp, err := identity.Generate(name, cipher.RandReader)
	if err != nil {
		return nil, err
	}
	engine := fsengine.New(store, kp, queue.Endpoint(name), nil)
	engine.AddListener(&printer{w: w, name: name})
	return &demoParty{
		kp:      kp,
		engine:  engine,
		contact: fsengine.Contact{Identity: name, PublicKey: kp.PublicKey()},
	}, nil
}

func (p *demoParty) send(w io.Writer, to *demoParty, text string) error {
	res, err := p.engine.Send(to.contact, &msg.Inner{Type: msg.Text, Body: []byte(text)})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s -> %s: %q (%s)\n", p.contact.Identity, to.contact.Identity, text, res.Mode)
	return nil
}

func (p *demoParty) receive(w io.Writer, from *demoParty) transport.Handler {
	return func(packet *transport.Packet) error {
		env, err := packet.Envelope()
		if err != nil {
			return err
		}
		inner, _, err := p.engine.Decapsulate(from.contact, env)
		if err != nil {
			return err
		}
		if inner != nil {
			fmt.Fprintf(w, "%s <- %s: %q (%s)\n", p.contact.Identity,
				from.contact.Identity, inner.Body, inner.FSMode)
		}
		return nil
	}
}

// demo lets two parties exchange messages over an in-memory transport.
func (ctrl *FSCtrl) demo(w io.Writer, cfg *demoConfig) error {
	var store session.Store
	if cfg.keyDB != nil {
		store = cfg.keyDB
	} else {
		store = memstore.New(def.FSVersionRange)
	}
	queue := transport.NewQueue(cipher.RandReader)
	dispatcher := transport.NewDispatcher(queue)
	alice, err := newDemoParty(w, "ALICE001", store, queue)
	if err != nil {
		return err
	}
	bob, err := newDemoParty(w, "BOB*0002", store, queue)
	if err != nil {
		return err
	}
	// start from scratch, sessions of earlier runs are useless
	for _, p := range [][2]string{{"ALICE001", "BOB*0002"}, {"BOB*0002", "ALICE001"}} {
		if _, err := store.DeleteAllSessions(p[0], p[1]); err != nil {
			return err
		}
	}
	for i := 1; i <= cfg.messages; i++ {
		text := fmt.Sprintf("message %d from %s", i, alice.contact.Identity)
		if err := alice.send(w, bob, text); err != nil {
			return err
		}
		dispatcher.Deliver(bob.contact.Identity, bob.receive(w, alice))
		if i == 1 && cfg.dropAccept {
			n := queue.Drop(alice.contact.Identity)
			fmt.Fprintf(w, "transport: dropped %d packets for %s\n", n, alice.contact.Identity)
		}
		text = fmt.Sprintf("message %d from %s", i, bob.contact.Identity)
		if err := bob.send(w, alice, text); err != nil {
			return err
		}
		dispatcher.Deliver(alice.contact.Identity, alice.receive(w, bob))
		dispatcher.Deliver(bob.contact.Identity, bob.receive(w, alice))
	}
	for _, p := range []*demoParty{alice, bob} {
		peer := bob
		if p == bob {
			peer = alice
		}
		s, err := store.BestSession(p.contact.Identity, peer.contact.Identity)
		if err != nil {
			return err
		}
		if s == nil {
			fmt.Fprintf(w, "%s: no session\n", p.contact.Identity)
			continue
		}
		fmt.Fprintf(w, "%s: %s\n", p.contact.Identity, s)
	}
	return nil
}
