package usecase

import (
	"sort"

	"github.com/DRSN-tech/photo-search/internal/domain"
)

type rankedPhoto struct {
	dist float32
	path string
}

type rankedProduct struct {
	id     string
	best   float32 // нормированное расстояние лучшего попадания
	score  float32 // тот же score в единицах метрики
	photos []rankedPhoto
}

// RankProducts группирует попадания по товарам и ранжирует товары по лучшему попаданию.
// Все score сначала переводятся в шкалу "меньше — лучше" через metric.ToDistance,
// поэтому порядок не зависит от направления метрики.
// Возвращает не больше k товаров, у каждого не больше photoCap фото (лучшие первыми).
func RankProducts(hits []domain.Hit, metric domain.Metric, k int, photoCap int) []ProductMatch {
	if k <= 0 || len(hits) == 0 {
		return []ProductMatch{}
	}

	grouped := make(map[string]*rankedProduct)
	for _, hit := range hits {
		dist := metric.ToDistance(hit.Score)
		pr, ok := grouped[hit.Payload.ProductID]
		if !ok {
			pr = &rankedProduct{id: hit.Payload.ProductID, best: dist, score: hit.Score}
			grouped[hit.Payload.ProductID] = pr
		}
		if dist < pr.best {
			pr.best = dist
			pr.score = hit.Score
		}
		pr.photos = append(pr.photos, rankedPhoto{dist: dist, path: hit.Payload.ImagePath})
	}

	ranked := make([]*rankedProduct, 0, len(grouped))
	for _, pr := range grouped {
		ranked = append(ranked, pr)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].best != ranked[j].best {
			return ranked[i].best < ranked[j].best
		}
		return ranked[i].id < ranked[j].id
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}

	res := make([]ProductMatch, 0, len(ranked))
	for _, pr := range ranked {
		sort.SliceStable(pr.photos, func(i, j int) bool {
			if pr.photos[i].dist != pr.photos[j].dist {
				return pr.photos[i].dist < pr.photos[j].dist
			}
			return pr.photos[i].path < pr.photos[j].path
		})

		photos := pr.photos
		if photoCap > 0 && len(photos) > photoCap {
			photos = photos[:photoCap]
		}

		paths := make([]string, 0, len(photos))
		for _, ph := range photos {
			paths = append(paths, ph.path)
		}
		res = append(res, NewProductMatch(pr.id, pr.score, paths))
	}

	return res
}

// overFetchLimit: сколько изображений запросить у индекса ради k товаров.
// Индекс из size записей больше size не вернёт, так что лимит ограничен им.
func overFetchLimit(k, factor, size int) int {
	if factor <= 0 {
		factor = 1
	}
	if k > size/factor {
		return size
	}
	return k * factor
}
