package telephony

import (
	"errors"

	"github.com/twilio/twilio-go/twiml"
)

// StreamTwiML connects the call audio to a media stream tagged with the session id.
func StreamTwiML(streamURL, sessionID, greeting string) (string, error) {
	if streamURL == "" {
		return "", errors.New("stream url is required")
	}
	var verbs []twiml.Element
	if greeting != "" {
		verbs = append(verbs, &twiml.VoiceSay{Message: greeting})
	}
	verbs = append(verbs, &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			&twiml.VoiceStream{
				Url: streamURL,
				InnerElements: []twiml.Element{
					&twiml.VoiceParameter{Name: "session_id", Value: sessionID},
				},
			},
		},
	})
	return twiml.Voice(verbs)
}

func DialTwiML(to string) (string, error) {
	if to == "" {
		return "", errors.New("dial target is required")
	}
	return twiml.Voice([]twiml.Element{&twiml.VoiceDial{Number: to}})
}

// RejectTwiML apologises and hangs up.
func RejectTwiML(message string) (string, error) {
	return twiml.Voice([]twiml.Element{
		&twiml.VoiceSay{Message: message},
		&twiml.VoiceHangup{},
	})
}
