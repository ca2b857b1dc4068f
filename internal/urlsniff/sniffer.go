// Package urlsniff detects external-resource references in message text.
package urlsniff

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/coopco/molebot/internal/content"
)

// Tag classifies a detection.
type Tag string

const (
	TagVideo     Tag = "video-platform"
	TagImage     Tag = "image-platform"
	TagSocial    Tag = "social-platform"
	TagMessaging Tag = "messaging-handle"
)

// VideoMimeType is the mime type attached to video-platform references.
const VideoMimeType = "video/youtube"

// Detection is one matched span.
type Detection struct {
	Span      string
	Tag       Tag
	Platform  string
	Directive string // empty for video detections
}

// Result is the outcome of sniffing one text.
type Result struct {
	Residual  string
	Videos    []Detection
	Directive *Detection
}

// Fragments returns the external-URI fragments for video detections.
func (r Result) Fragments() []content.Fragment {
	out := make([]content.Fragment, 0, len(r.Videos))
	for _, d := range r.Videos {
		out = append(out, content.External(normalizeURL(d.Span), VideoMimeType))
	}
	return out
}

// Rule is one detector. Rules are evaluated in slice order.
type Rule struct {
	Tag      Tag
	Pattern  *regexp.Regexp
	Platform func(span string) string
}

var (
	videoPattern     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?(?:youtu\.be/|youtube\.com/(?:embed/|v/|watch\?v=|watch\?.+&v=))([\w-]{11})\S*`)
	imagePattern     = regexp.MustCompile(`(?i)(?:https?://)?(?:www\.)?instagram\.com/([\w.-]+)/?(?:p|reel|tv)?/?([\w.-]*)/?`)
	socialPattern    = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:twitter\.com|x\.com|facebook\.com|fb\.watch|tiktok\.com)/[\w.@/-]+`)
	telegramPattern  = regexp.MustCompile(`(?i)t\.me/[\w.-]+|@[\w.-]+`)
	whatsappPattern  = regexp.MustCompile(`(?i)wa\.me/\d+|chat\.whatsapp\.com/\w+`)
	resourcePattern  = regexp.MustCompile(`(?i)\b(?:youtube\.com|youtu\.be|instagram\.com|twitter\.com|x\.com|facebook\.com|fb\.watch|tiktok\.com|t\.me|wa\.me|chat\.whatsapp\.com)\b`)
	onionPattern     = regexp.MustCompile(`(?i)\.onion\b`)
	defaultRuleOrder = []Rule{
		{Tag: TagVideo, Pattern: videoPattern, Platform: fixed("YouTube")},
		{Tag: TagImage, Pattern: imagePattern, Platform: fixed("Instagram")},
		{Tag: TagSocial, Pattern: socialPattern, Platform: socialPlatform},
		{Tag: TagMessaging, Pattern: telegramPattern, Platform: fixed("Telegram")},
		{Tag: TagMessaging, Pattern: whatsappPattern, Platform: fixed("WhatsApp")},
	}
)

// DefaultDirectives are the analysis instructions per tag. Each template
// receives the platform name and the matched span.
var DefaultDirectives = map[Tag]string{
	TagImage: "*SOCIAL MEDIA ANALYSIS - %s:* URL detected: `%s`. " +
		"Use the search tool to identify public content related to this URL and its subject. " +
		"Assess the profile or content based on the URL and everything you find. " +
		"*NOTE*: You have no access to private content or logins. Focus on indexed public information.",
	TagSocial: "*SOCIAL MEDIA ANALYSIS - %s:* URL detected: `%s`. " +
		"Use the search tool to identify public content related to this URL and its subject. " +
		"Assess the profile or content based on the URL and all public information you find. " +
		"*NOTE*: Do not attempt logins or private content. Focus on indexed public information.",
	TagMessaging: "*CHAT PLATFORM ANALYSIS - %s:* Identifier detected: `%s`. " +
		"Use the search tool to look for group links, usernames or public information related to it. " +
		"Give an assessment of the security risks or threats involved. " +
		"*NOTE*: The bot cannot read private messages. Focus on what the public index shows.",
}

// Sniffer evaluates detector rules in order.
type Sniffer struct {
	rules      []Rule
	directives map[Tag]string
}

// New creates a Sniffer with the default rules. Entries in directives
// override the default template for their tag.
func New(directives map[Tag]string) *Sniffer {
	d := make(map[Tag]string, len(DefaultDirectives))
	for k, v := range DefaultDirectives {
		d[k] = v
	}
	for k, v := range directives {
		if v != "" {
			d[k] = v
		}
	}
	return &Sniffer{rules: defaultRuleOrder, directives: d}
}

// Sniff strips recognized references from text. Video references become
// external fragments; at most one other detection yields a directive,
// with image-platform before social-platform before messaging-handle.
func (s *Sniffer) Sniff(text string) Result {
	res := Result{Residual: strings.TrimSpace(text)}
	for _, rule := range s.rules {
		if rule.Tag != TagVideo && res.Directive != nil {
			continue
		}
		span := rule.Pattern.FindString(res.Residual)
		if span == "" {
			continue
		}
		det := Detection{Span: span, Tag: rule.Tag, Platform: rule.Platform(span)}
		res.Residual = strings.TrimSpace(strings.Replace(res.Residual, span, "", 1))
		if rule.Tag == TagVideo {
			res.Videos = append(res.Videos, det)
			continue
		}
		det.Directive = fmt.Sprintf(s.directives[rule.Tag], det.Platform, span)
		res.Directive = &det
	}
	return res
}

// ContainsResource reports whether text mentions any recognized external
// platform.
func ContainsResource(text string) bool { return resourcePattern.MatchString(text) }

// IsHiddenService reports whether text references a .onion address.
func IsHiddenService(text string) bool { return onionPattern.MatchString(text) }

func fixed(name string) func(string) string {
	return func(string) string { return name }
}

func socialPlatform(span string) string {
	lower := strings.ToLower(span)
	switch {
	case strings.Contains(lower, "facebook") || strings.Contains(lower, "fb.watch"):
		return "Facebook"
	case strings.Contains(lower, "x.com") || strings.Contains(lower, "twitter.com"):
		return "X/Twitter"
	default:
		return "TikTok"
	}
}

func normalizeURL(u string) string {
	lower := strings.ToLower(u)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return u
	}
	return "https://" + u
}
