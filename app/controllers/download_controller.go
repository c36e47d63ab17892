package controllers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/nkoenig/assetvault/internal/pkg/middleware"
	"github.com/nkoenig/assetvault/internal/pkg/quota"
)

// HandleDownloadAsset consumes one download slot and, when admitted, returns
// a short-lived URL for the asset file. A denied request is a 403 with the
// denial reason, not a server error.
func HandleDownloadAsset(c *fiber.Ctx) error {
	ref := c.Params("id")
	assetID, err := strconv.ParseUint(ref, 10, 32)
	if err != nil || assetID == 0 {
		// Non-numeric references are public asset uuids.
		asset, aerr := services.Quota.AssetByUUID(c.Context(), ref)
		if aerr != nil {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Asset not found")
		}
		assetID = uint64(asset.ID)
	}
	userID := middleware.CurrentUserID(c)

	result, err := services.Quota.CheckAndConsume(c.Context(), userID, uint(assetID), c.IP(), c.Get(fiber.HeaderUserAgent))
	if err != nil {
		switch {
		case errors.Is(err, quota.ErrUserNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		case errors.Is(err, quota.ErrAssetNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Asset not found")
		default:
			return internalError(c, "Failed to process download")
		}
	}
	if !result.Allowed {
		return c.Status(fiber.StatusForbidden).JSON(result)
	}

	response := fiber.Map{
		"allowed":             true,
		"remaining_downloads": result.Remaining,
	}
	if services.Storage != nil && result.Download != nil {
		asset, err := services.Quota.Asset(c.Context(), uint(assetID))
		if err == nil && asset.FileKey != "" {
			url, perr := services.Storage.PresignDownload(c.Context(), asset.FileKey)
			if perr != nil {
				log.Errorf("presign failed for asset %d: %v", assetID, perr)
			} else {
				response["download_url"] = url
			}
		}
	}
	return c.JSON(response)
}

// HandleQuotaStatus returns the caller's quota snapshot for the current day.
func HandleQuotaStatus(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	status, err := services.Quota.Status(c.Context(), userID)
	if err != nil {
		if errors.Is(err, quota.ErrUserNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "User not found")
		}
		return internalError(c, "Failed to load quota status")
	}
	return c.JSON(status)
}

// HandleDownloadHistory returns the caller's download records, newest first.
func HandleDownloadHistory(c *fiber.Ctx) error {
	userID := middleware.CurrentUserID(c)
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	downloads, err := services.Quota.History(c.Context(), userID, (page-1)*limit, limit)
	if err != nil {
		return internalError(c, "Failed to load download history")
	}
	return c.JSON(fiber.Map{"downloads": downloads, "page": page})
}
