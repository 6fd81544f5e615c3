// Package persona assembles the system prompt and tool set for a chat turn.
// The editor persona critiques and edits the current chapter; a roleplay
// persona speaks as one entity and only knows what happened up to the
// chapter being viewed.
package persona

// EditorID is the persona id clients send for the editor.
const EditorID = "archie"

// Persona is either Editor or Roleplay.
type Persona interface {
	// ID is the id clients and transcripts use for the persona.
	ID() string
	isPersona()
}

// Editor is the demanding literary editor that may propose edits.
type Editor struct{}

func (Editor) ID() string { return EditorID }
func (Editor) isPersona() {}

// Roleplay speaks as the entity with the given id.
type Roleplay struct {
	EntityID string
}

func (r Roleplay) ID() string { return r.EntityID }
func (Roleplay) isPersona()   {}

// Parse maps a client persona id to a Persona. The editor id and the empty
// string select the editor; anything else is an entity id.
func Parse(id string) Persona {
	if id == "" || id == EditorID {
		return Editor{}
	}
	return Roleplay{EntityID: id}
}
