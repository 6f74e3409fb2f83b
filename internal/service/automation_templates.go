package service

import "github.com/unclebandit/salon-messaging/internal/model"

const (
	AutomationBookingConfirmation = "booking_confirmation"
	AutomationNoShowRecovery      = "no_show_recovery"
	AutomationDefault             = "default"
)

var automationTemplates = map[string]model.MessageOptions{
	AutomationBookingConfirmation: {
		Subject: "See you soon, {{firstName}} ✨",
		Title:   "Your appointment is confirmed",
		Body: model.StringList{
			"Thanks for booking with {{brandName}}. We cannot wait to pamper you.",
			"Appointment: {{appointmentDate}} at {{appointmentTime}} with {{stylist}}.",
			"Need to make a change? Tap the button below or reply to this email.",
		},
		CTA: &model.CallToAction{Label: "View appointment", URL: "{{bookingLink}}"},
	},
	AutomationNoShowRecovery: {
		Subject: "Let’s get you back in, {{firstName}}",
		Title:   "We missed you",
		Body: model.StringList{
			"We noticed you were not able to make it to your appointment. Life happens, so here is an easy way to reschedule.",
			"Tap below to secure a new time or call (704) 320-2786 if you need help.",
		},
		CTA: &model.CallToAction{Label: "Reschedule", URL: "{{bookingLink}}"},
	},
	AutomationDefault: {
		Subject: "A quick update from {{brandName}}",
		Title:   "{{brandName}}",
		Body: model.StringList{
			"We have some news for you.",
			"Tap below to learn more or reply with questions.",
		},
		CTA: &model.CallToAction{Label: "Visit our site", URL: "https://salonglamournc.com"},
	},
}

// AutomationTemplate returns the template for an automation type, falling
// back to the default template for unknown types.
func AutomationTemplate(automationType string) model.MessageOptions {
	if t, ok := automationTemplates[automationType]; ok {
		return t.Clone()
	}
	return automationTemplates[AutomationDefault].Clone()
}
