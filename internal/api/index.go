package api

// indexHTML is the viewer: the composited stream plus mode and capture controls
const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Backdrop</title>
    <style>
        body {
            margin: 0;
            background: #111827;
            color: #e5e7eb;
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            flex-direction: column;
            align-items: center;
        }
        img {
            max-width: 100vw;
            max-height: 80vh;
            margin-top: 16px;
            background: #202124;
        }
        .controls {
            display: flex;
            gap: 8px;
            flex-wrap: wrap;
            margin: 16px;
        }
        button {
            background: #374151;
            color: inherit;
            border: 1px solid #4b5563;
            border-radius: 4px;
            padding: 6px 12px;
            cursor: pointer;
        }
        button.active {
            background: #2563eb;
            border-color: #2563eb;
        }
        #status {
            font-size: 12px;
            color: #9ca3af;
        }
    </style>
</head>
<body>
    <img src="/stream" alt="stream">
    <div class="controls" id="controls">
        <button data-mode="off">Off</button>
        <button data-mode="blur">Blur</button>
    </div>
    <div class="controls">
        <button id="capture">Camera</button>
    </div>
    <div id="status"></div>
    <script>
        const controls = document.getElementById('controls');
        const captureBtn = document.getElementById('capture');
        const status = document.getElementById('status');
        let state = {};

        function put(path, body) {
            return fetch(path, {
                method: 'PUT',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify(body),
            }).then(r => r.json()).then(j => {
                if (j.error) status.textContent = j.error;
            });
        }

        function render() {
            const bg = state.background || {};
            for (const b of controls.querySelectorAll('button')) {
                const on = b.dataset.mode === bg.mode &&
                    (bg.mode !== 'wallpaper' || b.dataset.id === bg.wallpaper_id);
                b.classList.toggle('active', on);
                b.disabled = b.dataset.mode !== 'off' && !state.effects_available;
            }
            captureBtn.classList.toggle('active', !!state.capture_active);
            status.textContent = state.width + 'x' + state.height +
                (state.wallpaper_state ? ' wallpaper ' + state.wallpaper_state : '');
        }

        fetch('/api/wallpapers').then(r => r.json()).then(list => {
            for (const w of list) {
                const b = document.createElement('button');
                b.dataset.mode = 'wallpaper';
                b.dataset.id = w.id;
                b.textContent = w.name;
                controls.appendChild(b);
            }
            render();
        });

        controls.addEventListener('click', e => {
            const b = e.target.closest('button');
            if (b) put('/api/background', {mode: b.dataset.mode, wallpaper_id: b.dataset.id || ''});
        });
        captureBtn.addEventListener('click', () => put('/api/capture', {active: !state.capture_active}));

        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/api/state/stream');
        ws.onmessage = e => { state = JSON.parse(e.data); render(); };
    </script>
</body>
</html>`
