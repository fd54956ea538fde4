package enum

// ContentType tags the kind of payload a message carries. Locked types
// are stored per group and intersected against inbound messages.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypePhoto    ContentType = "photo"
	ContentTypeVideo    ContentType = "video"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeVoice    ContentType = "voice"
	ContentTypeDocument ContentType = "document"
	ContentTypeSticker  ContentType = "sticker"
	ContentTypeGif      ContentType = "gif"
	ContentTypeForward  ContentType = "forward"
	ContentTypeGame     ContentType = "game"
	ContentTypeLocation ContentType = "location"
	ContentTypeContact  ContentType = "contact"
	ContentTypePoll     ContentType = "poll"
	ContentTypeInline   ContentType = "inline"
	ContentTypeURL      ContentType = "url"
)

// Valid reports whether the content type is one of the known values.
func (c ContentType) Valid() bool {
	switch c {
	case ContentTypeText, ContentTypePhoto, ContentTypeVideo, ContentTypeAudio,
		ContentTypeVoice, ContentTypeDocument, ContentTypeSticker, ContentTypeGif,
		ContentTypeForward, ContentTypeGame, ContentTypeLocation, ContentTypeContact,
		ContentTypePoll, ContentTypeInline, ContentTypeURL:
		return true
	}

	return false
}
