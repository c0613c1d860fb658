// Copyright (c) 2015 Mute Communications Ltd.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msg

import (
	"github.com/mutecomm/mutefs/fsver"
	"github.com/mutecomm/mutefs/log"
	"github.com/mutecomm/mutefs/session"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// DH types on the wire
const (
	wireTwoDH  = 0
	wireFourDH = 1
)

func scalarField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:   proto.String(name),
		Number: proto.Int32(num),
		Label:  descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:   typ.Enum(),
	}
}

func typedField(name string, num int32, typ descriptorpb.FieldDescriptorProto_Type, typeName string) *descriptorpb.FieldDescriptorProto {
	f := scalarField(name, num, typ)
	f.TypeName = proto.String(".mutefs.fs." + typeName)
	return f
}

func messageField(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return typedField(name, num, descriptorpb.FieldDescriptorProto_TYPE_MESSAGE, typeName)
}

func enumField(name string, num int32, typeName string) *descriptorpb.FieldDescriptorProto {
	return typedField(name, num, descriptorpb.FieldDescriptorProto_TYPE_ENUM, typeName)
}

func inContent(f *descriptorpb.FieldDescriptorProto) *descriptorpb.FieldDescriptorProto {
	f.OneofIndex = proto.Int32(0)
	return f
}

func enumType(name string, values ...string) *descriptorpb.EnumDescriptorProto {
	e := &descriptorpb.EnumDescriptorProto{Name: proto.String(name)}
	for i, v := range values {
		e.Value = append(e.Value, &descriptorpb.EnumValueDescriptorProto{
			Name:   proto.String(v),
			Number: proto.Int32(int32(i)),
		})
	}
	return e
}

// fsProto is the schema of fs.proto.
var fsProto = &descriptorpb.FileDescriptorProto{
	Name:    proto.String("mutefs/msg/fs.proto"),
	Package: proto.String("mutefs.fs"),
	Syntax:  proto.String("proto3"),
	MessageType: []*descriptorpb.DescriptorProto{
		{
			Name: proto.String("Envelope"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("session_id", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				inContent(messageField("init", 2, "Init")),
				inContent(messageField("accept", 3, "Accept")),
				inContent(messageField("reject", 4, "Reject")),
				inContent(messageField("terminate", 5, "Terminate")),
				inContent(messageField("message", 6, "Message")),
			},
			OneofDecl: []*descriptorpb.OneofDescriptorProto{
				{Name: proto.String("content")},
			},
		},
		{
			Name: proto.String("Init"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("fssk", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				messageField("supported_version", 2, "VersionRange"),
			},
		},
		{
			Name: proto.String("Accept"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("fssk", 1, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				messageField("supported_version", 2, "VersionRange"),
			},
		},
		{
			Name: proto.String("Reject"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("message_id", 1, descriptorpb.FieldDescriptorProto_TYPE_FIXED64),
				enumField("cause", 2, "Reject.Cause"),
				messageField("group_identity", 3, "GroupIdentity"),
			},
			EnumType: []*descriptorpb.EnumDescriptorProto{
				enumType("Cause", "STATE_MISMATCH", "UNKNOWN_SESSION", "DISABLED_BY_LOCAL"),
			},
		},
		{
			Name: proto.String("Terminate"),
			Field: []*descriptorpb.FieldDescriptorProto{
				enumField("cause", 1, "Terminate.Cause"),
			},
			EnumType: []*descriptorpb.EnumDescriptorProto{
				enumType("Cause", "UNKNOWN_SESSION", "RESET", "DISABLED_BY_LOCAL", "DISABLED_BY_REMOTE"),
			},
		},
		{
			Name: proto.String("Message"),
			Field: []*descriptorpb.FieldDescriptorProto{
				enumField("dh_type", 1, "Message.DHType"),
				scalarField("counter", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalarField("message", 3, descriptorpb.FieldDescriptorProto_TYPE_BYTES),
				scalarField("offered_version", 4, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				messageField("group_identity", 5, "GroupIdentity"),
				scalarField("applied_version", 6, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
			},
			EnumType: []*descriptorpb.EnumDescriptorProto{
				enumType("DHType", "TWODH", "FOURDH"),
			},
		},
		{
			Name: proto.String("VersionRange"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("min", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
				scalarField("max", 2, descriptorpb.FieldDescriptorProto_TYPE_UINT32),
			},
		},
		{
			Name: proto.String("GroupIdentity"),
			Field: []*descriptorpb.FieldDescriptorProto{
				scalarField("group_id", 1, descriptorpb.FieldDescriptorProto_TYPE_UINT64),
				scalarField("creator_identity", 2, descriptorpb.FieldDescriptorProto_TYPE_STRING),
			},
		},
	},
}

var envelopeDesc = mustFile(fsProto).Messages().ByName("Envelope")

func mustFile(fdp *descriptorpb.FileDescriptorProto) protoreflect.FileDescriptor {
	fd, err := protodesc.NewFile(fdp, nil)
	if err != nil {
		panic(err)
	}
	return fd
}

func fieldOf(m protoreflect.Message, name protoreflect.Name) protoreflect.FieldDescriptor {
	return m.Descriptor().Fields().ByName(name)
}

func get(m protoreflect.Message, name protoreflect.Name) protoreflect.Value {
	return m.Get(fieldOf(m, name))
}

func has(m protoreflect.Message, name protoreflect.Name) bool {
	return m.Has(fieldOf(m, name))
}

func mutable(m protoreflect.Message, name protoreflect.Name) protoreflect.Message {
	return m.Mutable(fieldOf(m, name)).Message()
}

// zero values are left unset, like proto3 does
func setUint(m protoreflect.Message, name protoreflect.Name, v uint64) {
	if v == 0 {
		return
	}
	fd := fieldOf(m, name)
	if fd.Kind() == protoreflect.Uint32Kind {
		m.Set(fd, protoreflect.ValueOfUint32(uint32(v)))
	} else {
		m.Set(fd, protoreflect.ValueOfUint64(v))
	}
}

func setEnum(m protoreflect.Message, name protoreflect.Name, v int32) {
	if v != 0 {
		m.Set(fieldOf(m, name), protoreflect.ValueOfEnum(protoreflect.EnumNumber(v)))
	}
}

func setBytes(m protoreflect.Message, name protoreflect.Name, b []byte) {
	if len(b) > 0 {
		m.Set(fieldOf(m, name), protoreflect.ValueOfBytes(append([]byte(nil), b...)))
	}
}

func putRange(m protoreflect.Message, r fsver.Range) {
	setUint(m, "min", uint64(r.Min.Wire()))
	setUint(m, "max", uint64(r.Max.Wire()))
}

func putGroup(m protoreflect.Message, g *GroupIdentity) {
	if g == nil {
		return
	}
	gm := mutable(m, "group_identity")
	setUint(gm, "group_id", g.GroupID)
	if g.CreatorIdentity != "" {
		gm.Set(fieldOf(gm, "creator_identity"), protoreflect.ValueOfString(g.CreatorIdentity))
	}
}

func putKeyExchange(m protoreflect.Message, key *[KeySize]byte, versions fsver.Range) error {
	if key == nil {
		return log.Error(ErrInvalidKeyLength)
	}
	setBytes(m, "fssk", key[:])
	putRange(mutable(m, "supported_version"), versions)
	return nil
}

// Marshal encodes env.
func Marshal(env *Envelope) ([]byte, error) {
	m := dynamicpb.NewMessage(envelopeDesc)
	switch c := env.Content.(type) {
	case *Init:
		if err := putKeyExchange(mutable(m, "init"), c.EphemeralPublicKey, c.SupportedVersion); err != nil {
			return nil, err
		}
	case *Accept:
		if err := putKeyExchange(mutable(m, "accept"), c.EphemeralPublicKey, c.SupportedVersion); err != nil {
			return nil, err
		}
	case *Reject:
		r := mutable(m, "reject")
		if c.MessageID != 0 {
			r.Set(fieldOf(r, "message_id"), protoreflect.ValueOfUint64(c.MessageID))
		}
		setEnum(r, "cause", int32(c.Cause))
		putGroup(r, c.Group)
	case *Terminate:
		setEnum(mutable(m, "terminate"), "cause", int32(c.Cause))
	case *Message:
		var dhType int32
		switch c.DHType {
		case session.Mode2DH:
			dhType = wireTwoDH
		case session.Mode4DH:
			dhType = wireFourDH
		default:
			return nil, log.Error(ErrUnknownDHType)
		}
		mm := mutable(m, "message")
		setEnum(mm, "dh_type", dhType)
		setUint(mm, "counter", c.Counter)
		setBytes(mm, "message", c.Ciphertext)
		setUint(mm, "offered_version", uint64(c.OfferedVersion.Wire()))
		putGroup(mm, c.Group)
		setUint(mm, "applied_version", uint64(c.AppliedVersion.Wire()))
	default:
		return nil, log.Error(ErrMissingContent)
	}
	setBytes(m, "session_id", env.SessionID[:])
	// deterministic output puts the session ID before the content
	b, err := proto.MarshalOptions{Deterministic: true}.Marshal(m)
	if err != nil {
		return nil, log.Error(err)
	}
	return b, nil
}

func getRange(m protoreflect.Message) fsver.Range {
	return fsver.Range{
		Min: fsver.FromWire(uint32(get(m, "min").Uint())),
		Max: fsver.FromWire(uint32(get(m, "max").Uint())),
	}
}

func getGroup(m protoreflect.Message) *GroupIdentity {
	if !has(m, "group_identity") {
		return nil
	}
	g := get(m, "group_identity").Message()
	return &GroupIdentity{
		GroupID:         get(g, "group_id").Uint(),
		CreatorIdentity: get(g, "creator_identity").String(),
	}
}

func getKeyExchange(m protoreflect.Message) (*[KeySize]byte, fsver.Range, error) {
	b := get(m, "fssk").Bytes()
	if len(b) != KeySize {
		return nil, fsver.Range{}, log.Error(ErrInvalidKeyLength)
	}
	var key [KeySize]byte
	copy(key[:], b)
	return &key, getRange(get(m, "supported_version").Message()), nil
}

func getMessage(m protoreflect.Message) (*Message, error) {
	c := &Message{
		Counter:        get(m, "counter").Uint(),
		OfferedVersion: fsver.FromWire(uint32(get(m, "offered_version").Uint())),
		AppliedVersion: fsver.FromWire(uint32(get(m, "applied_version").Uint())),
		Group:          getGroup(m),
	}
	switch get(m, "dh_type").Enum() {
	case wireTwoDH:
		c.DHType = session.Mode2DH
	case wireFourDH:
		c.DHType = session.Mode4DH
	default:
		return nil, log.Error(ErrUnknownDHType)
	}
	if b := get(m, "message").Bytes(); len(b) > 0 {
		c.Ciphertext = append([]byte(nil), b...)
	}
	return c, nil
}

// Unmarshal decodes an envelope. Unknown fields are ignored, an envelope
// without known content is rejected.
func Unmarshal(b []byte) (*Envelope, error) {
	m := dynamicpb.NewMessage(envelopeDesc)
	if err := proto.Unmarshal(b, m); err != nil {
		return nil, log.Error(err)
	}
	var (
		env Envelope
		err error
	)
	if env.SessionID, err = session.IDFromBytes(get(m, "session_id").Bytes()); err != nil {
		return nil, log.Error(ErrInvalidSessionID)
	}
	fd := m.WhichOneof(envelopeDesc.Oneofs().ByName("content"))
	if fd == nil {
		return nil, log.Error(ErrMissingContent)
	}
	c := m.Get(fd).Message()
	switch fd.Name() {
	case "init":
		key, versions, err := getKeyExchange(c)
		if err != nil {
			return nil, err
		}
		env.Content = &Init{EphemeralPublicKey: key, SupportedVersion: versions}
	case "accept":
		key, versions, err := getKeyExchange(c)
		if err != nil {
			return nil, err
		}
		env.Content = &Accept{EphemeralPublicKey: key, SupportedVersion: versions}
	case "reject":
		env.Content = &Reject{
			MessageID: get(c, "message_id").Uint(),
			Cause:     RejectCause(get(c, "cause").Enum()),
			Group:     getGroup(c),
		}
	case "terminate":
		env.Content = &Terminate{Cause: TerminateCause(get(c, "cause").Enum())}
	case "message":
		if env.Content, err = getMessage(c); err != nil {
			return nil, err
		}
	}
	return &env, nil
}
