package dbhelper

import (
	"avatarmaxapi/models"
	"log"

	"gorm.io/gorm"
)

func SetupCleaner(db *gorm.DB) func() {

	return func() {

		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.EmailRequest{})
		db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.AvatarRequest{})

	}
}

func Migrate(db *gorm.DB, model interface{}) {
	err := db.AutoMigrate(model)
	if err != nil {
		log.Printf("Error while migrating %s", model)
		log.Fatal(err)
	}
}
