package mpris

import (
	"github.com/godbus/dbus/v5/introspect"
)

func readOnly(name, typ string) introspect.Property {
	return introspect.Property{Name: name, Type: typ, Access: "read", Annotations: nil}
}

var node = &introspect.Node{
	Name: string(ObjectPath),
	Interfaces: []introspect.Interface{
		introspect.IntrospectData,
		{
			Name:    RootInterface,
			Methods: introspect.Methods(&root{}),
			Properties: []introspect.Property{
				readOnly("Identity", "s"),
				readOnly("CanQuit", "b"),
				readOnly("CanRaise", "b"),
				readOnly("HasTrackList", "b"),
				readOnly("SupportedUriSchemes", "as"),
				readOnly("SupportedMimeTypes", "as"),
			},
		},
		{
			Name:    PlayerInterface,
			Methods: introspect.Methods(&controls{}),
			Properties: []introspect.Property{
				readOnly("PlaybackStatus", "s"),
				readOnly("Metadata", "a{sv}"),
				readOnly("Rate", "d"),
				readOnly("CanGoNext", "b"),
				readOnly("CanGoPrevious", "b"),
				readOnly("CanPlay", "b"),
				readOnly("CanPause", "b"),
				readOnly("CanSeek", "b"),
				readOnly("CanControl", "b"),
			},
		},
		{
			Name:    PropsInterface,
			Methods: introspect.Methods(&properties{}),
		},
	},
	Children: nil,
}
