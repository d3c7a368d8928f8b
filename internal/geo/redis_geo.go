package geo

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-booking/internal/models"
)

// RedisGeo implements Geo using Redis GEO commands.
type RedisGeo struct {
	client *redis.Client
	key    string
}

func NewRedisGeo(client *redis.Client, key string) *RedisGeo {
	return &RedisGeo{client: client, key: key}
}

func (r *RedisGeo) Upsert(ctx context.Context, d models.DriverSnapshot) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		r.stage(ctx, p, d)
		return nil
	})
	return err
}

// stage queues GEOADD plus the metadata hash for d.
func (r *RedisGeo) stage(ctx context.Context, p redis.Pipeliner, d models.DriverSnapshot) {
	name := member(d.ID)
	p.GeoAdd(ctx, r.key, &redis.GeoLocation{Name: name, Longitude: d.CurrentLongitude, Latitude: d.CurrentLatitude})
	p.HSet(ctx, metaKey(name), map[string]interface{}{
		"name":      d.DisplayName(),
		"plate":     d.VehiclePlateNumber,
		"available": strconv.FormatBool(d.Available),
		"updated":   time.Now().Format(time.RFC3339),
	})
}

func (r *RedisGeo) Move(ctx context.Context, driverID int64, c models.Coord) (bool, error) {
	name := member(driverID)
	if err := r.client.ZScore(ctx, r.key, name).Err(); err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Name: name, Longitude: c.Lon, Latitude: c.Lat}).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *RedisGeo) Remove(ctx context.Context, driverID int64) error {
	name := member(driverID)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZRem(ctx, r.key, name)
		p.Del(ctx, metaKey(name))
		return nil
	})
	return err
}

func (r *RedisGeo) Replace(ctx context.Context, ds []models.DriverSnapshot) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.key)
		for _, d := range ds {
			r.stage(ctx, p, d)
		}
		return nil
	})
	return err
}

func (r *RedisGeo) Nearby(ctx context.Context, c models.Coord, radiusKm float64, limit int) ([]models.DriverSnapshot, error) {
	if radiusKm <= 0 {
		radiusKm = 5
	}
	res, err := r.client.GeoRadius(ctx, r.key, c.Lon, c.Lat, &redis.GeoRadiusQuery{Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Count: limit, Sort: "ASC"}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverSnapshot, 0, len(res))
	for _, g := range res {
		out = append(out, r.hydrate(ctx, g.Name, g.Latitude, g.Longitude))
	}
	return out, nil
}

func (r *RedisGeo) All(ctx context.Context) ([]models.DriverSnapshot, error) {
	names, err := r.client.ZRange(ctx, r.key, 0, -1).Result()
	if err != nil || len(names) == 0 {
		return nil, err
	}
	pos, err := r.client.GeoPos(ctx, r.key, names...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.DriverSnapshot, 0, len(names))
	for i, name := range names {
		if i >= len(pos) || pos[i] == nil {
			continue
		}
		out = append(out, r.hydrate(ctx, name, pos[i].Latitude, pos[i].Longitude))
	}
	return out, nil
}

func (r *RedisGeo) hydrate(ctx context.Context, name string, lat, lon float64) models.DriverSnapshot {
	id, _ := strconv.ParseInt(name, 10, 64)
	d := models.DriverSnapshot{ID: id, CurrentLatitude: lat, CurrentLongitude: lon}
	// metadata is best effort, position is authoritative
	if m, err := r.client.HGetAll(ctx, metaKey(name)).Result(); err == nil {
		d.Name = m["name"]
		d.VehiclePlateNumber = m["plate"]
		d.Available = m["available"] == "true"
	}
	return d
}

func member(id int64) string { return strconv.FormatInt(id, 10) }

func metaKey(name string) string { return "driver:meta:" + name }
