package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleiltonsr/prograos-fiscal/internal/domain/entity"
	"github.com/cleiltonsr/prograos-fiscal/internal/infrastructure/memory"
)

func TestEmitterRepo_ReservaSequencial(t *testing.T) {
	repo := memory.NewEmitterRepo(&entity.EmitterConfig{ID: "em-1", ProximoNumero: 10})

	for esperado := int64(10); esperado < 15; esperado++ {
		n, err := repo.ReserveNextNumber(context.Background())
		require.NoError(t, err)
		assert.Equal(t, esperado, n)
	}

	cfg, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(15), cfg.ProximoNumero)
}

// Duas emissões simultâneas nunca podem receber o mesmo nNF.
func TestEmitterRepo_ReservaConcorrente(t *testing.T) {
	const goroutines = 100

	repo := memory.NewEmitterRepo(&entity.EmitterConfig{ID: "em-1", ProximoNumero: 1})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numeros = make(map[int64]bool, goroutines)
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := repo.ReserveNextNumber(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			numeros[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, numeros, goroutines, "cada reserva deve devolver um número distinto")
	for n := int64(1); n <= goroutines; n++ {
		assert.True(t, numeros[n], "número %d ausente da sequência", n)
	}
}

func TestEmitterRepo_UpdateNaoRecuaContador(t *testing.T) {
	repo := memory.NewEmitterRepo(&entity.EmitterConfig{ID: "em-1", ProximoNumero: 50})

	_, err := repo.ReserveNextNumber(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), &entity.EmitterConfig{ID: "em-1", RazaoSocial: "Nova Razao", ProximoNumero: 1})
	require.NoError(t, err)

	cfg, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Nova Razao", cfg.RazaoSocial)
	assert.Equal(t, int64(51), cfg.ProximoNumero)
}

func TestEmitterRepo_SemEmitente(t *testing.T) {
	repo := memory.NewEmitterRepo(nil)

	cfg, err := repo.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, cfg)

	_, err = repo.ReserveNextNumber(context.Background())
	require.Error(t, err)
}
