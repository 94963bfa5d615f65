package language

import "strings"

// Locale is what the speech front end needs to play text back.
type Locale struct {
	Voice    string
	Language string
}

// Profile holds the static, never LLM-generated material for one language.
type Profile struct {
	Locale Locale

	Greeting string
	Farewell string
	Apology  string

	// FarewellTokens are matched by case-insensitive containment in caller speech.
	FarewellTokens []string
}

// Catalog maps each supported Tag to its Profile. Unknown tags read the default profile.
type Catalog struct {
	def      Tag
	profiles map[Tag]Profile
}

func NewCatalog(def Tag) *Catalog {
	if !def.Valid() {
		def = English
	}
	return &Catalog{
		def: def,
		profiles: map[Tag]Profile{
			English: {
				Locale:         Locale{Voice: "Polly.Joanna", Language: "en-US"},
				Greeting:       "Hi, this is the virtual assistant for the property management office. You can talk to me like you would to a person. How can I help you today?",
				Farewell:       "Thank you for calling. A member of our team will follow up with you soon. Goodbye.",
				Apology:        "I'm sorry, I'm having a technical issue right now. Could you please say that again?",
				FarewellTokens: []string{"goodbye", "bye"},
			},
			Spanish: {
				Locale:         Locale{Voice: "Polly.Conchita", Language: "es-ES"},
				Greeting:       "Hola, soy el asistente virtual de la oficina de administración de propiedades. Puede hablar conmigo como si fuera una persona. ¿En qué puedo ayudarle?",
				Farewell:       "Gracias por llamar. Un miembro de nuestro equipo se comunicará con usted pronto. Adiós.",
				Apology:        "Lo siento, estoy teniendo un problema técnico. ¿Podría repetirlo, por favor?",
				FarewellTokens: []string{"adios", "adiós", "gracias", "hasta luego"},
			},
		},
	}
}

func (c *Catalog) Default() Tag { return c.def }

// SetVoice overrides the playback voice for tag. Empty voices are ignored.
func (c *Catalog) SetVoice(tag Tag, voice string) {
	p, ok := c.profiles[tag]
	if !ok || strings.TrimSpace(voice) == "" {
		return
	}
	p.Locale.Voice = voice
	c.profiles[tag] = p
}

// SetFarewellTokens replaces the farewell vocabulary for tag. An empty list keeps the built-in one.
func (c *Catalog) SetFarewellTokens(tag Tag, tokens []string) {
	p, ok := c.profiles[tag]
	if !ok || len(tokens) == 0 {
		return
	}
	p.FarewellTokens = append([]string(nil), tokens...)
	c.profiles[tag] = p
}

func (c *Catalog) Profile(tag Tag) Profile {
	if p, ok := c.profiles[tag]; ok {
		return p
	}
	return c.profiles[c.def]
}

func (c *Catalog) Locale(tag Tag) Locale { return c.Profile(tag).Locale }

// IsFarewell reports whether text contains a farewell token of tag or of the default language.
// Matching is case-insensitive substring containment, so "byebye" and "goodbyes" end the call.
func (c *Catalog) IsFarewell(text string, tag Tag) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	check := func(t Tag) bool {
		for _, tok := range c.Profile(t).FarewellTokens {
			tok = strings.ToLower(strings.TrimSpace(tok))
			if tok != "" && strings.Contains(lower, tok) {
				return true
			}
		}
		return false
	}
	if check(tag) {
		return true
	}
	return tag != c.def && check(c.def)
}
