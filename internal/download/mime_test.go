package download

import "testing"

func TestMIMEForExtension(t *testing.T) {
	if got := MIMEForExtension(".glb"); got != "model/gltf-binary" {
		t.Errorf("MIMEForExtension(.glb) = %q", got)
	}
	if got := MIMEForExtension("MP3"); got != "audio/mpeg" {
		t.Errorf("MIMEForExtension(MP3) = %q", got)
	}
	if got := MIMEForExtension("xyz"); got != octetStream {
		t.Errorf("MIMEForExtension(xyz) = %q", got)
	}
}

func TestExtensionForMIME(t *testing.T) {
	if got := ExtensionForMIME("audio/mpeg; charset=binary"); got != "mp3" {
		t.Errorf("ExtensionForMIME with params = %q", got)
	}
	if got := ExtensionForMIME("application/x-mystery"); got != "bin" {
		t.Errorf("ExtensionForMIME(unknown) = %q", got)
	}
}

func TestHasKnownExtension(t *testing.T) {
	if !hasKnownExtension("model.glb") {
		t.Error("hasKnownExtension(model.glb) = false")
	}
	if hasKnownExtension("track") {
		t.Error("hasKnownExtension(track) = true")
	}
}
