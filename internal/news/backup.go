// Package news holds the backup feed served when the live news provider is unusable.
package news

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/kjstillabower/irrigation-advisor/internal/models"
)

const (
	// MinLiveArticles is the fewest valid live articles that are served instead of the backup feed.
	MinLiveArticles = 2
	// BackupSize is the number of items in the backup feed.
	BackupSize = 20
	// BackupSource labels every backup item.
	BackupSource = "AgriWire"

	defaultBackupLocation = "Global"
)

var backupImages = []string{
	"https://images.unsplash.com/photo-1625246333195-78d9c38ad449?w=600&q=80",
	"https://images.unsplash.com/photo-1500937386664-56d1dfef3854?w=600&q=80",
	"https://images.unsplash.com/photo-1530836369250-ef72a3f5cda8?w=600&q=80",
	"https://images.unsplash.com/photo-1589923188900-85dae523342b?w=600&q=80",
}

func backupTitles(location string) []string {
	return []string{
		"New Sustainable Irrigation Methods Approved",
		"Bumper Crop Harvest Expected in " + location,
		"Global Wheat Prices Stabilize After Surge",
		"Smart Farming: Using Drones for Soil Health",
	}
}

// Backup returns the deterministic backup feed for a location. An empty city reads "Global".
func Backup(city string) []models.Article {
	location := strings.TrimSpace(city)
	if location == "" {
		location = defaultBackupLocation
	}
	titles := backupTitles(location)

	items := make([]models.Article, 0, BackupSize)
	for i := 0; i < BackupSize; i++ {
		title := titles[i%len(titles)]
		items = append(items, models.Article{
			ID:     models.ArticleID("backup-" + strconv.Itoa(i)),
			Title:  title,
			Source: BackupSource,
			Time:   strconv.Itoa(i%12+1) + " hours ago",
			Image:  backupImages[i%len(backupImages)],
			URL:    "https://www.google.com/search?q=" + encodeComponent(title),
		})
	}
	return items
}

// encodeComponent escapes s for a query value using %20 for spaces.
func encodeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
