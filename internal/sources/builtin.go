package sources

var defaultProfile = Profile{
	ImageSelectors: []string{
		"img.featured",
		".featured-image img",
		"article img:first-of-type",
		".content img:first-child",
		"img",
	},
	Placeholder: Placeholder{
		URL:     "https://via.placeholder.com/400x200/95a5a6/ffffff?text=IoT+News",
		Alt:     "IoT News placeholder",
		Caption: "IoT industry news",
	},
}

var builtin = map[string]Profile{
	"iottechnews.com": {
		Name:    "IoT Tech News",
		Trusted: true,
		ImageSelectors: []string{
			".wp-post-image",
			".post-thumbnail img",
			".featured-image img",
			"article img:first-of-type",
			".entry-content img:first-child",
		},
		Placeholder: Placeholder{
			URL:     "https://via.placeholder.com/400x200/2c3e50/ffffff?text=IoT+Tech+News",
			Alt:     "IoT Tech News placeholder",
			Caption: "IoT technology news",
		},
	},
	"iot-now.com": {
		Name:    "IoT Now",
		Trusted: true,
		ImageSelectors: []string{
			".post-featured-image img",
			".article-image img",
			".post-content img:first-child",
			"img.attachment-full",
		},
		Placeholder: Placeholder{
			URL:     "https://via.placeholder.com/400x200/3498db/ffffff?text=IoT+Now",
			Alt:     "IoT Now placeholder",
			Caption: "Enterprise IoT insights",
		},
	},
	"iotbusinessnews.com": {
		Name:           "IoT Business News",
		TeamLabel:      "IoT Business News Team",
		GenericAuthors: []string{"IoT.Business.News", "iot"},
		ImageSelectors: []string{
			".wp-post-image",
			".featured-image img",
			".post-image img",
			"img.attachment-post-thumbnail",
		},
		Placeholder: Placeholder{
			URL:     "https://via.placeholder.com/400x200/27ae60/ffffff?text=IoT+Business",
			Alt:     "IoT Business News placeholder",
			Caption: "IoT business news",
		},
	},
	"iotinsider.com": {
		Name: "IoT Insider",
	},
}
