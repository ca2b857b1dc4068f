package agent

import "strings"

// Texts are the user-visible replies. Fields ending in Format are
// fmt templates.
type Texts struct {
	Onboarding  string
	Activated   string
	Deactivated string
	SpamWarning string
	Menu        string
	MemoryReset string

	ModelSwitchedFormat string // mode name, backend model
	DrawUsage           string
	DrawCaptionFormat   string // model, prompt
	DrawTextOnlyFormat  string // prompt, model text
	DrawFailed          string
	DrawUnavailable     string

	AssetCaption        string
	AssetMissingFormat  string // path
	AssetFailed         string
	TooLargeFormat      string // kind, limit in MB
	UnsupportedFormat   string // mime type
	DownloadFailed      string
	QRFoundFormat       string // decoded value
	QRDirectiveFormat   string // decoded value
	ApologyFormat       string // error detail
	ErrUnsupportedMedia string
	ErrTooLarge         string
	ErrServer           string
	ErrGeneric          string

	// Identity replaces the stock self-description in FAST replies.
	Identity         string
	ModeHeaderFormat string // mode label
}

// DefaultTexts returns the built-in replies for the given command prefix.
func DefaultTexts(prefix string) Texts {
	r := strings.NewReplacer("{p}", prefix)
	return Texts{
		Onboarding: r.Replace(strings.TrimSpace(`
Hello, you have reached one of our agents. Please wait for the system to connect you, or:

    Type: ` + "`2`" + `
    to start a conversation with Agent Mole.
    *if you are already talking to Agent Mole*
    Type: ` + "`1`" + `
    (to leave the Agent Mole conversation and reach this number again).

*Quick guide:*
Tips💡
Mole is an AI agent built to investigate patterns of crime on the internet,
connected to the dark web and the open internet for searching.
- To ask questions or send media to Agent Mole, activate the session by typing ` + "`2`" + ` first.
- Type ` + "`{p}menu`" + ` to see the full list of commands.`)),
		Activated:   "✅ *Agent Mole chat session activated!* You can now ask questions, send media or URLs. Type `1` to leave the session.",
		Deactivated: "❌ *Agent Mole chat session deactivated!* The bot will stay quiet. Type `2` to activate the session again.",
		SpamWarning: "⚠️ *Anti-spam warning*: you are sending too many messages in a short time. Please wait a moment before sending again.",
		Menu: r.Replace(strings.TrimSpace(`
*🕵️ AGENT MOLE MENU*

*{p}menu* - show this menu
*{p}reset* - wipe the conversation memory
*{p}fast* / *{p}flash* - switch to Fast Mode
*{p}smart* / *{p}pro* - switch to Smart Mode
*{p}draw* / *{p}gambar* <description> - generate an image
*{p}norek* - account information

Send text, images, videos, documents (PDF/TXT/DOCX/XLSX/PPTX), voice notes or links for analysis.`)),
		MemoryReset: "*✅ Your entire conversation history has been erased*. Memory has been cleared.",

		ModelSwitchedFormat: "✅ Mode switched to *%s* (`%s`). A fresh memory starts now.",
		DrawUsage:           r.Replace("Please describe the image you want, for example: `{p}draw an astronaut dog in outer space`"),
		DrawCaptionFormat:   "✅ *Image created (Model: `%s`):*\n\"%s\"",
		DrawTextOnlyFormat:  "Sorry, the image for prompt \"%s\" could not be created. The model only returned text:\n%s",
		DrawFailed:          "Sorry, an error occurred while creating the image with Agent Mole. Please check the server logs for details.",
		DrawUnavailable:     "Sorry, image generation is not available with the configured backend.",

		AssetCaption: "*💸 Account info (IMPORTANT):*\n\nThis information is for safe fund transfers. " +
			"Make sure the recipient name is correct.\n\nBelow are the details and a QR code to make the transaction easier. Thank you.",
		AssetMissingFormat: "⚠️ Sorry, the image file at `%s` was not found on the server.",
		AssetFailed:        "Sorry, an error occurred while sending the requested image.",
		TooLargeFormat:     "⚠️ Sorry, the file size (%s) exceeds the maximum of *%d MB*.",
		UnsupportedFormat: "⚠️ Sorry, the document type `%s` is not supported yet. Only *PDF, TXT, DOCX/DOC, XLSX/XLS, PPTX* " +
			"and other *code/text* files are supported.",
		DownloadFailed:      "Sorry, the attached media could not be downloaded. Please send it again.",
		QRFoundFormat:       "*✅ QR Code Found!*:\n```\n%s\n```",
		QRDirectiveFormat:   "The QR code in this image contains: \"%s\". Analyze the QR code data as well as the whole image, then reply to this message.",
		ApologyFormat:       "Sorry, an error occurred while contacting Agent Mole.\n\n⚠️ *Error detail:* %s",
		ErrUnsupportedMedia: "This media/audio type is not supported by Agent Mole. Make sure audio is MP3, WAV or another common format.",
		ErrTooLarge:         "The file is too large or the API key has a problem. (Error 400 Bad Request)",
		ErrServer:           "Agent Mole AI hit an internal error. Please try again shortly.",
		ErrGeneric:          "A connection or general processing error occurred.",

		Identity:         "I am Agent Mole, a large language model used to investigate criminal cases.",
		ModeHeaderFormat: "*💠 Active mode:* `%s`\n",
	}
}

// merge fills empty fields of t from d.
func (t Texts) merge(d Texts) Texts {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&t.Onboarding, d.Onboarding)
	fill(&t.Activated, d.Activated)
	fill(&t.Deactivated, d.Deactivated)
	fill(&t.SpamWarning, d.SpamWarning)
	fill(&t.Menu, d.Menu)
	fill(&t.MemoryReset, d.MemoryReset)
	fill(&t.ModelSwitchedFormat, d.ModelSwitchedFormat)
	fill(&t.DrawUsage, d.DrawUsage)
	fill(&t.DrawCaptionFormat, d.DrawCaptionFormat)
	fill(&t.DrawTextOnlyFormat, d.DrawTextOnlyFormat)
	fill(&t.DrawFailed, d.DrawFailed)
	fill(&t.DrawUnavailable, d.DrawUnavailable)
	fill(&t.AssetCaption, d.AssetCaption)
	fill(&t.AssetMissingFormat, d.AssetMissingFormat)
	fill(&t.AssetFailed, d.AssetFailed)
	fill(&t.TooLargeFormat, d.TooLargeFormat)
	fill(&t.UnsupportedFormat, d.UnsupportedFormat)
	fill(&t.DownloadFailed, d.DownloadFailed)
	fill(&t.QRFoundFormat, d.QRFoundFormat)
	fill(&t.QRDirectiveFormat, d.QRDirectiveFormat)
	fill(&t.ApologyFormat, d.ApologyFormat)
	fill(&t.ErrUnsupportedMedia, d.ErrUnsupportedMedia)
	fill(&t.ErrTooLarge, d.ErrTooLarge)
	fill(&t.ErrServer, d.ErrServer)
	fill(&t.ErrGeneric, d.ErrGeneric)
	fill(&t.Identity, d.Identity)
	fill(&t.ModeHeaderFormat, d.ModeHeaderFormat)
	return t
}
