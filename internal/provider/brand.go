package provider

// Brand is the sender identity used when rendering email.
type Brand struct {
	Name            string
	LogoURL         string
	AccentColor     string
	BackgroundColor string
	TextColor       string
	FooterText      string
	SupportEmail    string
	Social          []SocialLink
}

type SocialLink struct {
	Name    string
	URL     string
	IconURL string
}

// DefaultBrand returns the salon's house style under the given name.
func DefaultBrand(name string) Brand {
	if name == "" {
		name = "Salon Glamour NC"
	}
	return Brand{
		Name:            name,
		LogoURL:         "https://salonglamournc.com/site-assets/logo-signature.png",
		AccentColor:     "#CBA675",
		BackgroundColor: "#fdf8f3",
		TextColor:       "#1e1e1e",
		FooterText:      name + " • 1520 West Blvd Suite 3 • Charlotte, NC • (704) 320-2786",
		SupportEmail:    "frontdesk@salonglamournc.com",
		Social: []SocialLink{
			{Name: "Instagram", URL: "https://www.instagram.com/salonglamournc", IconURL: "https://cdn.simpleicons.org/instagram/C13584"},
			{Name: "Facebook", URL: "https://www.facebook.com/salonglamournc", IconURL: "https://cdn.simpleicons.org/facebook/1877F2"},
			{Name: "TikTok", URL: "https://www.tiktok.com/@salonglamournc", IconURL: "https://cdn.simpleicons.org/tiktok/000000"},
		},
	}
}
