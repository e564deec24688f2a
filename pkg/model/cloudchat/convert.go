package cloudchat

import (
	"encoding/base64"
	"fmt"
	"strings"

	openaisdk "github.com/openai/openai-go/v3"

	"github.com/modelmux/modelmux/pkg/model"
)

func toSDKMessages(messages []model.Message, vision bool) []openaisdk.ChatCompletionMessageParamUnion {
	if len(messages) == 0 {
		return []openaisdk.ChatCompletionMessageParamUnion{buildUserMessage(model.Message{}, false)}
	}
	params := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch strings.ToLower(msg.Role) {
		case model.RoleSystem:
			params = append(params, buildSystemMessage(msg.Content))
		case model.RoleAssistant:
			params = append(params, buildAssistantMessage(msg.Content))
		default:
			params = append(params, buildUserMessage(msg, vision))
		}
	}
	return params
}

func buildSystemMessage(content string) openaisdk.ChatCompletionMessageParamUnion {
	msg := openaisdk.ChatCompletionSystemMessageParam{}
	msg.Content.OfString = openaisdk.String(content)
	return openaisdk.ChatCompletionMessageParamUnion{OfSystem: &msg}
}

func buildAssistantMessage(content string) openaisdk.ChatCompletionMessageParamUnion {
	msg := openaisdk.ChatCompletionAssistantMessageParam{}
	msg.Content.OfString = openaisdk.String(content)
	return openaisdk.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

// buildUserMessage emits a plain string message, or a multimodal content
// part list when the message carries an image and the model supports
// vision. Images on non-vision models are dropped silently; the text still
// goes through.
func buildUserMessage(msg model.Message, vision bool) openaisdk.ChatCompletionMessageParamUnion {
	param := openaisdk.ChatCompletionUserMessageParam{}
	if vision && len(msg.Image) > 0 {
		parts := []openaisdk.ChatCompletionContentPartUnionParam{}
		if msg.Content != "" {
			parts = append(parts, openaisdk.ChatCompletionContentPartUnionParam{
				OfText: &openaisdk.ChatCompletionContentPartTextParam{Text: msg.Content},
			})
		}
		parts = append(parts, openaisdk.ChatCompletionContentPartUnionParam{
			OfImageURL: &openaisdk.ChatCompletionContentPartImageParam{
				ImageURL: openaisdk.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(msg.Image),
				},
			},
		})
		param.Content.OfArrayOfContentParts = parts
		return openaisdk.ChatCompletionMessageParamUnion{OfUser: &param}
	}
	param.Content.OfString = openaisdk.String(msg.Content)
	return openaisdk.ChatCompletionMessageParamUnion{OfUser: &param}
}

func dataURL(image []byte) string {
	mime := sniffImageMIME(image)
	return fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
}

func sniffImageMIME(data []byte) string {
	switch {
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return "image/png"
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case len(data) >= 6 && (string(data[:6]) == "GIF87a" || string(data[:6]) == "GIF89a"):
		return "image/gif"
	case len(data) >= 12 && string(data[8:12]) == "WEBP":
		return "image/webp"
	default:
		return "image/png"
	}
}
