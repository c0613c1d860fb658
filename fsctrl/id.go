// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package fsctrl

import (
	"encoding/base64"
	"fmt"
	"io"

	"github.com/mutecomm/mutefs/cipher"
	"github.com/mutecomm/mutefs/identity"
	"github.com/mutecomm/mutefs/log"
)

func (ctrl *FSCtrl) idGenerate(w io.Writer, id string) error {
	kp, err := identity.Generate(id, cipher.RandReader)
	if err != nil {
		return err
	}
	if err := ctrl.keyDB.AddIdentity(kp); err != nil {
		return err
	}
	log.Infof("identity %s generated", id)
	fmt.Fprintf(w, "%s %s\n", id, base64.StdEncoding.EncodeToString(kp.PublicKey()[:]))
	return nil
}

// idList prints all local identities with their public keys.
func (ctrl *FSCtrl) idList(w io.Writer) error {
	ids, err := ctrl.keyDB.GetIdentities()
	if err != nil {
		return err
	}
	for _, id := range ids {
		kp, err := ctrl.keyDB.GetIdentity(id)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", id, base64.StdEncoding.EncodeToString(kp.PublicKey()[:]))
	}
	return nil
}

func (ctrl *FSCtrl) contactAdd(id, pubkey string) error {
	b, err := base64.StdEncoding.DecodeString(pubkey)
	if err != nil {
		return log.Error(err)
	}
	if len(b) != 32 {
		return log.Errorf("fsctrl: public key of %s has wrong length %d", id, len(b))
	}
	var publicKey [32]byte
	copy(publicKey[:], b)
	return ctrl.keyDB.AddContact(id, &publicKey)
}

func (ctrl *FSCtrl) contactList(w io.Writer) error {
	contacts, err := ctrl.keyDB.GetContacts()
	if err != nil {
		return err
	}
	for _, contact := range contacts {
		pub, err := ctrl.keyDB.GetContact(contact)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s %s\n", contact, base64.StdEncoding.EncodeToString(pub[:]))
	}
	return nil
}
